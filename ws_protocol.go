package trajplot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Protocol constants
const (
	// ProtocolVersion is the current version of the viewer protocol
	ProtocolVersion byte = 1

	// Message type constants
	MessageTypeData      byte = 0x01
	MessageTypeMetadata  byte = 0x02
	MessageTypeStreamEnd byte = 0x03

	// Header size in bytes
	EnvelopeHeaderSize = 8
)

// EnvelopeHeader represents the message envelope header
type EnvelopeHeader struct {
	Version  byte
	Reserved [2]byte // Reserved for future use
	Type     byte
	Length   uint32 // Payload length in bytes
}

// DataMessage carries the points of one panel. SeriesID is the panel index,
// top to bottom.
type DataMessage struct {
	SeriesID uint32
	Length   uint32    // Number of X/Y pairs
	X        []float64 // time values
	Y        []float64 // column values
}

// StreamEndMessage tells the client that every panel has been sent.
type StreamEndMessage struct {
	Error bool
	Msg   string
}

// WSMessage represents a complete websocket message with header and payload
type WSMessage struct {
	Header  EnvelopeHeader
	Payload interface{} // One of: DataMessage, Metadata, StreamEndMessage
}

func NewDataMessage(seriesID int, panel Panel) DataMessage {
	msg := DataMessage{
		SeriesID: uint32(seriesID),
		Length:   uint32(len(panel.Points)),
		X:        make([]float64, len(panel.Points)),
		Y:        make([]float64, len(panel.Points)),
	}
	for i, p := range panel.Points {
		msg.X[i] = p.X
		msg.Y[i] = p.Y
	}
	return msg
}

// EncodeEnvelopeHeader encodes the envelope header into a byte slice
func EncodeEnvelopeHeader(env EnvelopeHeader) []byte {
	buf := make([]byte, EnvelopeHeaderSize)
	buf[0] = env.Version
	buf[1] = env.Reserved[0]
	buf[2] = env.Reserved[1]
	buf[3] = env.Type
	binary.LittleEndian.PutUint32(buf[4:8], env.Length)
	return buf
}

// DecodeEnvelopeHeader decodes the envelope header from a byte slice
func DecodeEnvelopeHeader(buf []byte) (EnvelopeHeader, error) {
	if len(buf) < EnvelopeHeaderSize {
		return EnvelopeHeader{}, fmt.Errorf("buffer too short: expected at least %d bytes, got %d", EnvelopeHeaderSize, len(buf))
	}

	env := EnvelopeHeader{
		Version: buf[0],
		Type:    buf[3],
		Length:  binary.LittleEndian.Uint32(buf[4:8]),
	}
	env.Reserved[0] = buf[1]
	env.Reserved[1] = buf[2]

	return env, nil
}

// EncodeDataMessage encodes a DATA message payload: SeriesID, Length, then
// all X values followed by all Y values.
func EncodeDataMessage(msg DataMessage) ([]byte, error) {
	if len(msg.X) != len(msg.Y) {
		return nil, fmt.Errorf("X and Y arrays must have same length: X=%d, Y=%d", len(msg.X), len(msg.Y))
	}
	if uint32(len(msg.X)) != msg.Length {
		return nil, fmt.Errorf("Length field (%d) doesn't match array length (%d)", msg.Length, len(msg.X))
	}

	buf := make([]byte, 8+msg.Length*8*2)
	binary.LittleEndian.PutUint32(buf[0:4], msg.SeriesID)
	binary.LittleEndian.PutUint32(buf[4:8], msg.Length)

	offset := 8
	for _, values := range [][]float64{msg.X, msg.Y} {
		for _, v := range values {
			binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(v))
			offset += 8
		}
	}

	return buf, nil
}

// DecodeDataMessage decodes a DATA message payload
func DecodeDataMessage(buf []byte) (DataMessage, error) {
	if len(buf) < 8 {
		return DataMessage{}, fmt.Errorf("buffer too short for DATA message: expected at least 8 bytes, got %d", len(buf))
	}

	msg := DataMessage{
		SeriesID: binary.LittleEndian.Uint32(buf[0:4]),
		Length:   binary.LittleEndian.Uint32(buf[4:8]),
	}

	expectedSize := 8 + uint64(msg.Length)*8*2
	if uint64(len(buf)) != expectedSize {
		return DataMessage{}, fmt.Errorf("buffer size mismatch: expected %d bytes for %d pairs, got %d", expectedSize, msg.Length, len(buf))
	}

	msg.X = make([]float64, msg.Length)
	msg.Y = make([]float64, msg.Length)

	offset := 8
	for _, values := range [][]float64{msg.X, msg.Y} {
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[offset : offset+8]))
			offset += 8
		}
	}

	return msg, nil
}

// JSON payloads are prefixed with their length: JSON Length (4 bytes) + JSON.
func encodeJSONPayload(v interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 4+len(jsonData))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(jsonData)))
	copy(buf[4:], jsonData)

	return buf, nil
}

func decodeJSONPayload(buf []byte, kind string, v interface{}) error {
	if len(buf) < 4 {
		return fmt.Errorf("buffer too short for %s message: expected at least 4 bytes, got %d", kind, len(buf))
	}

	expectedSize := 4 + uint64(binary.LittleEndian.Uint32(buf[0:4]))
	if uint64(len(buf)) != expectedSize {
		return fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", expectedSize, len(buf))
	}

	if err := json.Unmarshal(buf[4:], v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}

	return nil
}

func EncodeMetadataMessage(metadata Metadata) ([]byte, error) {
	buf, err := encodeJSONPayload(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return buf, nil
}

func DecodeMetadataMessage(buf []byte) (Metadata, error) {
	var metadata Metadata
	if err := decodeJSONPayload(buf, "METADATA", &metadata); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func EncodeStreamEndMessage(msg StreamEndMessage) ([]byte, error) {
	buf, err := encodeJSONPayload(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream end message: %w", err)
	}
	return buf, nil
}

func DecodeStreamEndMessage(buf []byte) (StreamEndMessage, error) {
	var msg StreamEndMessage
	if err := decodeJSONPayload(buf, "STREAM_END", &msg); err != nil {
		return StreamEndMessage{}, err
	}
	return msg, nil
}

// EncodeWSMessage encodes a WSMessage into a complete message byte slice. The
// header length is always taken from the encoded payload.
func EncodeWSMessage(msg WSMessage) ([]byte, error) {
	var payload []byte
	var err error

	switch msg.Header.Type {
	case MessageTypeData:
		dataMsg, ok := msg.Payload.(DataMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected DataMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeDataMessage(dataMsg)
	case MessageTypeMetadata:
		metadata, ok := msg.Payload.(Metadata)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected Metadata for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeMetadataMessage(metadata)
	case MessageTypeStreamEnd:
		streamEnd, ok := msg.Payload.(StreamEndMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected StreamEndMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeStreamEndMessage(streamEnd)
	default:
		return nil, fmt.Errorf("unknown message type: 0x%02x", msg.Header.Type)
	}
	if err != nil {
		return nil, err
	}

	msg.Header.Length = uint32(len(payload))

	fullMsg := make([]byte, 0, EnvelopeHeaderSize+len(payload))
	fullMsg = append(fullMsg, EncodeEnvelopeHeader(msg.Header)...)
	fullMsg = append(fullMsg, payload...)

	return fullMsg, nil
}

// DecodeWSMessage decodes a complete message (envelope + payload) into a WSMessage
func DecodeWSMessage(buf []byte) (WSMessage, error) {
	env, err := DecodeEnvelopeHeader(buf)
	if err != nil {
		return WSMessage{}, err
	}

	expectedSize := uint64(EnvelopeHeaderSize) + uint64(env.Length)
	if uint64(len(buf)) < expectedSize {
		return WSMessage{}, fmt.Errorf("buffer too short: expected %d bytes (header + payload), got %d", expectedSize, len(buf))
	}

	payloadBytes := buf[EnvelopeHeaderSize:expectedSize]

	var payload interface{}
	switch env.Type {
	case MessageTypeData:
		payload, err = DecodeDataMessage(payloadBytes)
	case MessageTypeMetadata:
		payload, err = DecodeMetadataMessage(payloadBytes)
	case MessageTypeStreamEnd:
		payload, err = DecodeStreamEndMessage(payloadBytes)
	default:
		return WSMessage{}, fmt.Errorf("unknown message type: 0x%02x", env.Type)
	}
	if err != nil {
		return WSMessage{}, err
	}

	return WSMessage{
		Header:  env,
		Payload: payload,
	}, nil
}

// encodeFigureMessages produces the full sequence sent to a viewer client:
// METADATA, one DATA per panel, then STREAM_END.
func encodeFigureMessages(figure *Figure, metadata Metadata) ([][]byte, error) {
	messages := make([]WSMessage, 0, len(figure.Panels)+2)
	messages = append(messages, WSMessage{
		Header:  EnvelopeHeader{Version: ProtocolVersion, Type: MessageTypeMetadata},
		Payload: metadata,
	})
	for i, panel := range figure.Panels {
		messages = append(messages, WSMessage{
			Header:  EnvelopeHeader{Version: ProtocolVersion, Type: MessageTypeData},
			Payload: NewDataMessage(i, panel),
		})
	}
	messages = append(messages, WSMessage{
		Header:  EnvelopeHeader{Version: ProtocolVersion, Type: MessageTypeStreamEnd},
		Payload: StreamEndMessage{Msg: fmt.Sprintf("%d panels sent", len(figure.Panels))},
	})

	encoded := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		buf, err := EncodeWSMessage(msg)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, buf)
	}

	return encoded, nil
}
