package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/cactusdynamics/trajplot"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// Config holds the configuration for the WS reader
type Config struct {
	ServerURL string
	Output    io.Writer
	Logger    logrus.FieldLogger
}

// WSReader connects to a running plot_trajectory viewer and writes the plotted
// series as CSV.
type WSReader struct {
	config    Config
	csvWriter *csv.Writer

	// Panel titles from the METADATA message, indexed by series id.
	panels []string
}

func NewWSReader(config Config) *WSReader {
	return &WSReader{
		config:    config,
		csvWriter: csv.NewWriter(config.Output),
	}
}

// Connect establishes the websocket connection and processes messages until
// the viewer signals the end of the figure.
func (w *WSReader) Connect(ctx context.Context) error {
	u, err := url.Parse(w.config.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	// Reading the figure must not count as a viewer window, or the plot
	// process would exit after this client leaves.
	u.RawQuery = "observe=1"

	w.config.Logger.WithField("url", u.String()).Info("connecting to websocket")

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := w.csvWriter.Write([]string{"column", "time", "value"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for {
		_, messageData, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				w.config.Logger.Info("connection closed normally")
				break
			}
			w.csvWriter.Flush()
			return fmt.Errorf("error reading message: %w", err)
		}

		if err := w.processMessage(messageData); err == io.EOF {
			w.config.Logger.Info("figure complete")
			break
		} else if err != nil {
			w.config.Logger.WithError(err).Error("error processing message")
		}
	}

	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

func (w *WSReader) processMessage(messageData []byte) error {
	msg, err := trajplot.DecodeWSMessage(messageData)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	switch payload := msg.Payload.(type) {
	case trajplot.Metadata:
		w.config.Logger.WithField("metadata", payload).Debug("received metadata")
		w.panels = payload.Panels
	case trajplot.DataMessage:
		return w.processDataMessage(payload)
	case trajplot.StreamEndMessage:
		if payload.Error {
			w.config.Logger.WithField("message", payload.Msg).Error("viewer reported an error")
		}
		return io.EOF
	default:
		w.config.Logger.Warnf("unknown message type 0x%02x", msg.Header.Type)
	}

	return nil
}

func (w *WSReader) processDataMessage(dataMsg trajplot.DataMessage) error {
	column := strconv.FormatUint(uint64(dataMsg.SeriesID), 10)
	if int(dataMsg.SeriesID) < len(w.panels) {
		column = w.panels[dataMsg.SeriesID]
	}

	for i := range dataMsg.X {
		row := []string{
			column,
			strconv.FormatFloat(dataMsg.X[i], 'g', -1, 64),
			strconv.FormatFloat(dataMsg.Y[i], 'g', -1, 64),
		}
		if err := w.csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

type options struct {
	URL     string `long:"url" required:"true" description:"URL of the plot_trajectory viewer, as logged in its 'showing figure at' line"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug output"`
}

func parseOptions(args []string) (options, error) {
	var opts options
	_, err := flags.ParseArgs(&opts, args)
	return opts, err
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if trajplot.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	config := Config{
		ServerURL: opts.URL,
		Output:    os.Stdout,
		Logger:    logger.WithField("tag", "WSReader"),
	}

	reader := NewWSReader(config)
	if err := reader.Connect(context.Background()); err != nil {
		config.Logger.WithError(err).Error("failed to read figure")
		os.Exit(1)
	}
}
