package wsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/types"
)

// DefaultReadLimit caps a single inbound message.
const DefaultReadLimit = ipc.MaxFrameSize

// Endpoint paths.
const (
	EncodePath = "/encode"
	DecodePath = "/decode"
)

// Completion describes a finished connection pipeline.
type Completion struct {
	Meta     types.PipelineMeta
	Stats    pipeline.Stats
	Started  time.Time
	Finished time.Time
	// Err is nil on a graceful end of stream.
	Err error
}

// CompletionFunc is invoked after every connection pipeline finishes.
type CompletionFunc func(ctx context.Context, c Completion)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Defaults seeds the padding sizes of each connection. Connections get
	// their own copy; in-band updates never leak across connections.
	Defaults *codec.Config
	// ReadLimit caps inbound message size. Zero means DefaultReadLimit.
	ReadLimit int64
	// Logger defaults to a component logger on stderr.
	Logger *log.Logger
	// Collector receives frame and lifecycle metrics. May be nil.
	Collector *metrics.Collector
	// Observers are attached to every connection pipeline.
	Observers []pipeline.Observer
	// OnComplete is called after each connection pipeline finishes.
	OnComplete CompletionFunc
}

// Server runs one pipeline per WebSocket connection. The direction is
// selected by the request path.
type Server struct {
	opts     ServerOptions
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	active map[*pipeline.Pipeline]struct{}
	wg     sync.WaitGroup
}

// NewServer creates a Server.
func NewServer(opts ServerOptions) *Server {
	if opts.Defaults == nil {
		opts.Defaults = codec.NewConfig()
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewComponentLogger("wsock")
	}
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		active: make(map[*pipeline.Pipeline]struct{}),
	}
}

// Handler returns the HTTP handler serving the encode and decode endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(EncodePath, func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, types.DirectionEncode)
	})
	mux.HandleFunc(DecodePath, func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, types.DirectionDecode)
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done, then stops accepting,
// closes every active pipeline, and waits for them to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	s.Close()
	return nil
}

// Close stops every active connection pipeline and waits for them.
// Connections upgraded afterwards are closed immediately. Hijacked
// WebSocket connections are not tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for p := range s.active {
		_ = p.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, dir types.Direction) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	conn := NewConn(ws)
	defer conn.Terminate()

	peer := r.RemoteAddr
	src := ipc.NewSource(conn, s.logger)
	observers := append([]pipeline.Observer{}, s.opts.Observers...)
	if s.opts.Collector != nil {
		observers = append(observers, s.opts.Collector)
	}

	p, err := pipeline.New(pipeline.Options{
		Direction: dir,
		Source:    src,
		Sink:      ipc.NewSink(conn, s.logger),
		Config:    copyConfig(s.opts.Defaults),
		Logger:    s.logger,
		Observers: observers,
		Peer:      &peer,
	})
	if err != nil {
		s.logger.Error("pipeline setup failed", map[string]any{"error": err.Error()})
		return
	}
	src.OnControl(p.Apply)

	if !s.track(p) {
		_ = conn.Close()
		return
	}
	defer s.untrack(p)

	s.opts.Collector.IncPipelineStarted()
	started := time.Now()
	runErr := p.Run(r.Context())
	finished := time.Now()
	stats := p.Stats()
	s.opts.Collector.AbsorbControlStats(stats.ConfigUpdates, stats.ConfigRejected, stats.CryptoKeys)
	if runErr != nil {
		s.opts.Collector.IncPipelineFailed()
		s.logger.Warn("connection pipeline failed", map[string]any{
			"pipeline_id": p.Meta().PipelineID,
			"error":       runErr.Error(),
		})
	} else {
		s.opts.Collector.IncPipelineCompleted()
	}

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(context.WithoutCancel(r.Context()), Completion{
			Meta:     p.Meta(),
			Stats:    stats,
			Started:  started,
			Finished: finished,
			Err:      runErr,
		})
	}
}

// track registers p as active. Returns false once the server is closed.
func (s *Server) track(p *pipeline.Pipeline) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.active[p] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(p *pipeline.Pipeline) {
	s.mu.Lock()
	delete(s.active, p)
	s.mu.Unlock()
	s.wg.Done()
}

// copyConfig returns an independent Config with the values of src.
func copyConfig(src *codec.Config) *codec.Config {
	cfg := codec.NewConfig()
	for kind, v := range src.Snapshot() {
		// Values in src were already validated.
		_ = cfg.SetPaddingSize(kind, int64(v))
	}
	return cfg
}
