package trajplot

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

//go:embed webui
var webuiFiles embed.FS

const (
	DefaultCloseGrace = 2 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type ViewerOptions struct {
	Host        string
	Port        uint16
	OpenBrowser bool

	// After the last window disconnects, wait this long for one to come back
	// (a page reload) before considering the window closed.
	CloseGrace time.Duration
}

// Viewer shows a figure in a browser window and tracks whether that window is
// still open. It stands in for a blocking GUI window: Run returns once every
// window that connected has gone away. Clients that dial /ws?observe=1 get the
// same messages but are not counted as windows.
type Viewer struct {
	metadata Metadata
	options  ViewerOptions

	image    []byte
	messages [][]byte

	mux    *http.ServeMux
	logger logrus.FieldLogger

	// Called with the viewer URL once it is listening.
	openURL func(string)

	mutex       sync.Mutex
	openWindows int
	closeTimer  *time.Timer
	closeOnce   sync.Once
	closed      chan struct{}
	stopping    chan struct{}
}

func NewViewer(figure *Figure, metadata Metadata, options ViewerOptions) (*Viewer, error) {
	if options.CloseGrace <= 0 {
		options.CloseGrace = DefaultCloseGrace
	}

	var image bytes.Buffer
	if err := figure.WriteTo(&image, "png"); err != nil {
		return nil, err
	}

	messages, err := encodeFigureMessages(figure, metadata)
	if err != nil {
		return nil, err
	}

	v := &Viewer{
		metadata: metadata,
		options:  options,
		image:    image.Bytes(),
		messages: messages,
		mux:      http.NewServeMux(),
		logger:   logrus.WithField("tag", "Viewer"),
		openURL:  openBrowser,
		closed:   make(chan struct{}),
		stopping: make(chan struct{}),
	}

	subFS, err := fs.Sub(webuiFiles, "webui")
	if err != nil {
		panic(err)
	}

	v.mux.Handle("/", http.FileServer(http.FS(subFS)))
	v.mux.HandleFunc("/figure.png", v.handleFigure)
	v.mux.HandleFunc("/metadata", v.handleMetadata)
	v.mux.HandleFunc("/ws", v.handleWebSocket)

	return v, nil
}

// Closed is closed once the window has been closed by the user.
func (v *Viewer) Closed() <-chan struct{} {
	return v.closed
}

func (v *Viewer) handleFigure(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(v.image)
}

func (v *Viewer) handleMetadata(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v.metadata)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
	}
}

func (v *Viewer) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	c, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		v.logger.WithError(err).Warn("failed to accept new websocket connection")
		return
	}

	// Nothing is ever read from the window. The context is cancelled when the
	// window goes away.
	ctx := c.CloseRead(req.Context())

	if req.URL.Query().Get("observe") == "" {
		v.windowOpened()
		defer v.windowClosed()
	}

	for _, msg := range v.messages {
		if err := c.Write(ctx, websocket.MessageBinary, msg); err != nil {
			v.logger.WithError(err).Warn("websocket write failed and closed")
			return
		}
	}

	select {
	case <-ctx.Done():
		v.logger.Info("window closed connection")
		c.Close(websocket.StatusNormalClosure, "")
	case <-v.stopping:
		c.Close(websocket.StatusGoingAway, "plot_trajectory exiting")
	}
}

func (v *Viewer) windowOpened() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.openWindows++
	if v.closeTimer != nil {
		v.closeTimer.Stop()
		v.closeTimer = nil
	}

	v.logger.WithField("openWindows", v.openWindows).Debug("window opened")
}

func (v *Viewer) windowClosed() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.openWindows--
	v.logger.WithField("openWindows", v.openWindows).Debug("window disconnected")

	if v.openWindows == 0 {
		v.closeTimer = time.AfterFunc(v.options.CloseGrace, v.markClosedIfNoWindows)
	}
}

func (v *Viewer) markClosedIfNoWindows() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	// A window may have reconnected after the timer fired but before we got
	// the lock.
	if v.openWindows > 0 {
		return
	}

	v.closeOnce.Do(func() {
		close(v.closed)
	})
}

// Run serves the figure and opens it in a browser. It blocks until the window
// is closed, in which case it returns nil, or until ctx is cancelled, in which
// case it returns the context error.
func (v *Viewer) Run(ctx context.Context) error {
	addr := net.JoinHostPort(v.options.Host, strconv.Itoa(int(v.options.Port)))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := &http.Server{Handler: v.mux}
	url := "http://" + listener.Addr().String()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-v.closed:
			v.logger.Info("window closed, shutting down")
		case <-gctx.Done():
			v.logger.Info("interrupted, shutting down")
		}

		close(v.stopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	v.logger.Infof("showing figure at %s", url)
	if v.options.OpenBrowser {
		v.openURL(url)
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}
