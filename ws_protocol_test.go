package trajplot

import (
	"encoding/binary"
	"math"
	"reflect"
	"strings"
	"testing"
)

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

func assertErrContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("error = %q, want error containing %q", err.Error(), substr)
	}
}

func TestEnvelopeHeader(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		env := EnvelopeHeader{
			Version:  ProtocolVersion,
			Reserved: [2]byte{0xAB, 0xCD},
			Type:     MessageTypeData,
			Length:   1000000,
		}

		encoded := EncodeEnvelopeHeader(env)
		if len(encoded) != EnvelopeHeaderSize {
			t.Fatalf("encoded header size = %d, want %d", len(encoded), EnvelopeHeaderSize)
		}

		decoded, err := DecodeEnvelopeHeader(encoded)
		if err != nil {
			t.Fatalf("DecodeEnvelopeHeader() error = %v", err)
		}
		if decoded != env {
			t.Fatalf("decoded = %+v, want %+v", decoded, env)
		}
	})

	t.Run("LittleEndianLength", func(t *testing.T) {
		encoded := EncodeEnvelopeHeader(EnvelopeHeader{Length: 0x01020304})
		if want := []byte{0x04, 0x03, 0x02, 0x01}; !reflect.DeepEqual(encoded[4:8], want) {
			t.Fatalf("length bytes = %v, want %v", encoded[4:8], want)
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := DecodeEnvelopeHeader([]byte{1, 2, 3, 4, 5, 6, 7})
		assertErrContains(t, err, "buffer too short")
	})
}

func TestDataMessage(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		msg := DataMessage{
			SeriesID: 3,
			Length:   5,
			X:        []float64{0.0, math.Copysign(0, -1), math.Inf(1), math.Inf(-1), math.NaN()},
			Y:        []float64{math.MaxFloat64, -math.MaxFloat64, math.SmallestNonzeroFloat64, 1e-308, 1e308},
		}

		encoded, err := EncodeDataMessage(msg)
		if err != nil {
			t.Fatalf("EncodeDataMessage() error = %v", err)
		}
		if len(encoded) != 8+5*8*2 {
			t.Fatalf("encoded size = %d, want %d", len(encoded), 8+5*8*2)
		}

		// X values come before Y values.
		if got := math.Float64frombits(binary.LittleEndian.Uint64(encoded[8+5*8:])); got != math.MaxFloat64 {
			t.Fatalf("first Y value = %v, want MaxFloat64", got)
		}

		decoded, err := DecodeDataMessage(encoded)
		if err != nil {
			t.Fatalf("DecodeDataMessage() error = %v", err)
		}
		if decoded.SeriesID != msg.SeriesID || decoded.Length != msg.Length {
			t.Fatalf("decoded header = (%d, %d), want (%d, %d)", decoded.SeriesID, decoded.Length, msg.SeriesID, msg.Length)
		}
		for i := range msg.X {
			if !floatEqual(decoded.X[i], msg.X[i]) || !floatEqual(decoded.Y[i], msg.Y[i]) {
				t.Errorf("point %d = (%v, %v), want (%v, %v)", i, decoded.X[i], decoded.Y[i], msg.X[i], msg.Y[i])
			}
		}
	})

	t.Run("FromPanel", func(t *testing.T) {
		table := loadTestTable(t, trajectoryCSV)
		f, err := NewFigure(table, FigureOptions{})
		if err != nil {
			t.Fatalf("NewFigure: %v", err)
		}

		msg := NewDataMessage(1, f.Panels[1])
		if msg.SeriesID != 1 || msg.Length != 5 {
			t.Fatalf("unexpected header: %+v", msg)
		}
		if want := []float64{0, 0.1, 0.2, 0.3, 0.4}; !reflect.DeepEqual(msg.X, want) {
			t.Fatalf("X = %v, want %v", msg.X, want)
		}
		if want := []float64{-1, -2, -3, -4, -5}; !reflect.DeepEqual(msg.Y, want) {
			t.Fatalf("Y = %v, want %v", msg.Y, want)
		}
	})

	t.Run("EncodeErrors", func(t *testing.T) {
		_, err := EncodeDataMessage(DataMessage{Length: 2, X: []float64{1, 2}, Y: []float64{1}})
		assertErrContains(t, err, "must have same length")

		_, err = EncodeDataMessage(DataMessage{Length: 5, X: []float64{1, 2}, Y: []float64{1, 2}})
		assertErrContains(t, err, "doesn't match array length")
	})

	t.Run("DecodeErrors", func(t *testing.T) {
		_, err := DecodeDataMessage([]byte{1, 2, 3})
		assertErrContains(t, err, "buffer too short")

		missing := make([]byte, 8)
		missing[4] = 10
		_, err = DecodeDataMessage(missing)
		assertErrContains(t, err, "buffer size mismatch")

		extra := make([]byte, 8+3*8*2)
		extra[4] = 1
		_, err = DecodeDataMessage(extra)
		assertErrContains(t, err, "buffer size mismatch")
	})
}

func TestJSONPayloads(t *testing.T) {
	t.Run("MetadataRoundTrip", func(t *testing.T) {
		metadata := Metadata{
			Title:        "gait",
			DataFilepath: "gait.csv",
			TimeColumn:   "time",
			Panels:       []string{"hip", "knee"},
			IncludeZero:  true,
			NumRows:      42,
		}

		encoded, err := EncodeMetadataMessage(metadata)
		if err != nil {
			t.Fatalf("EncodeMetadataMessage() error = %v", err)
		}
		if got := binary.LittleEndian.Uint32(encoded[0:4]); int(got) != len(encoded)-4 {
			t.Fatalf("JSON length prefix = %d, want %d", got, len(encoded)-4)
		}

		decoded, err := DecodeMetadataMessage(encoded)
		if err != nil {
			t.Fatalf("DecodeMetadataMessage() error = %v", err)
		}
		if !reflect.DeepEqual(decoded, metadata) {
			t.Fatalf("decoded = %+v, want %+v", decoded, metadata)
		}
	})

	t.Run("StreamEndRoundTrip", func(t *testing.T) {
		msg := StreamEndMessage{Error: true, Msg: "failed"}
		encoded, err := EncodeStreamEndMessage(msg)
		if err != nil {
			t.Fatalf("EncodeStreamEndMessage() error = %v", err)
		}
		decoded, err := DecodeStreamEndMessage(encoded)
		if err != nil {
			t.Fatalf("DecodeStreamEndMessage() error = %v", err)
		}
		if decoded != msg {
			t.Fatalf("decoded = %+v, want %+v", decoded, msg)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := DecodeMetadataMessage([]byte{1, 0})
		assertErrContains(t, err, "buffer too short for METADATA")

		_, err = DecodeStreamEndMessage([]byte{10, 0, 0, 0, '{', '}'})
		assertErrContains(t, err, "buffer size mismatch")

		_, err = DecodeStreamEndMessage([]byte{2, 0, 0, 0, '{', '['})
		assertErrContains(t, err, "failed to unmarshal STREAM_END")
	})
}

func TestWSMessage(t *testing.T) {
	t.Run("RoundTripAllTypes", func(t *testing.T) {
		messages := []WSMessage{
			{
				Header:  EnvelopeHeader{Version: ProtocolVersion, Type: MessageTypeMetadata},
				Payload: Metadata{Title: "t", Panels: []string{"a"}},
			},
			{
				Header:  EnvelopeHeader{Version: ProtocolVersion, Type: MessageTypeData},
				Payload: DataMessage{SeriesID: 0, Length: 2, X: []float64{0, 1}, Y: []float64{5, 6}},
			},
			{
				Header:  EnvelopeHeader{Version: ProtocolVersion, Type: MessageTypeStreamEnd},
				Payload: StreamEndMessage{Msg: "done"},
			},
		}

		for _, msg := range messages {
			encoded, err := EncodeWSMessage(msg)
			if err != nil {
				t.Fatalf("EncodeWSMessage(0x%02x) error = %v", msg.Header.Type, err)
			}

			decoded, err := DecodeWSMessage(encoded)
			if err != nil {
				t.Fatalf("DecodeWSMessage(0x%02x) error = %v", msg.Header.Type, err)
			}

			if decoded.Header.Length != uint32(len(encoded)-EnvelopeHeaderSize) {
				t.Errorf("header length = %d, want %d", decoded.Header.Length, len(encoded)-EnvelopeHeaderSize)
			}
			if !reflect.DeepEqual(decoded.Payload, msg.Payload) {
				t.Errorf("payload = %+v, want %+v", decoded.Payload, msg.Payload)
			}
		}
	})

	t.Run("EncodeErrors", func(t *testing.T) {
		_, err := EncodeWSMessage(WSMessage{
			Header:  EnvelopeHeader{Type: MessageTypeData},
			Payload: StreamEndMessage{},
		})
		assertErrContains(t, err, "payload type mismatch")

		_, err = EncodeWSMessage(WSMessage{Header: EnvelopeHeader{Type: 0x7F}})
		assertErrContains(t, err, "unknown message type")
	})

	t.Run("DecodeErrors", func(t *testing.T) {
		truncated := EncodeEnvelopeHeader(EnvelopeHeader{Type: MessageTypeData, Length: 100})
		_, err := DecodeWSMessage(truncated)
		assertErrContains(t, err, "buffer too short")

		unknown := EncodeEnvelopeHeader(EnvelopeHeader{Type: 0x7F})
		_, err = DecodeWSMessage(unknown)
		assertErrContains(t, err, "unknown message type")
	})
}

func TestEncodeFigureMessages(t *testing.T) {
	table := loadTestTable(t, trajectoryCSV)
	f, err := NewFigure(table, FigureOptions{IncludeZero: true})
	if err != nil {
		t.Fatalf("NewFigure: %v", err)
	}
	metadata := NewMetadata(f, PlotConfig{DataFilepath: "trajectory.csv", IncludeZero: true})

	encoded, err := encodeFigureMessages(f, metadata)
	if err != nil {
		t.Fatalf("encodeFigureMessages: %v", err)
	}

	wantTypes := []byte{MessageTypeMetadata, MessageTypeData, MessageTypeData, MessageTypeStreamEnd}
	if len(encoded) != len(wantTypes) {
		t.Fatalf("got %d messages, want %d", len(encoded), len(wantTypes))
	}

	for i, buf := range encoded {
		msg, err := DecodeWSMessage(buf)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if msg.Header.Type != wantTypes[i] {
			t.Fatalf("message %d type = 0x%02x, want 0x%02x", i, msg.Header.Type, wantTypes[i])
		}
		if data, ok := msg.Payload.(DataMessage); ok && data.SeriesID != uint32(i-1) {
			t.Fatalf("message %d series id = %d, want %d", i, data.SeriesID, i-1)
		}
	}

	first, _ := DecodeWSMessage(encoded[0])
	if got := first.Payload.(Metadata); !reflect.DeepEqual(got, metadata) {
		t.Fatalf("metadata = %+v, want %+v", got, metadata)
	}
}
