// Package health provides the HTTP probe server for muti-ping.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/metrics"
	"github.com/postalsys/muti-ping/internal/status"
	"github.com/postalsys/muti-ping/internal/sysinfo"
	"github.com/postalsys/muti-ping/pkg/ping"
)

// Pinger sends echo requests on behalf of the probe endpoints.
type Pinger interface {
	SendPing(addr netip.Addr, timeout time.Duration, payload []byte, opts *ping.Options) (ping.Reply, error)
}

// Stats contains probe server statistics.
type Stats struct {
	Probes     uint64 `json:"probes"`
	Failures   uint64 `json:"failures"`
	WSSessions int64  `json:"ws_sessions"`
}

// ServerConfig contains health server configuration.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP reads
	ReadTimeout time.Duration

	// WriteTimeout for HTTP writes
	WriteTimeout time.Duration

	// Timeout, TTL, DontFragment and PayloadSize are applied when a probe
	// does not override them.
	Timeout      time.Duration
	TTL          uint8
	DontFragment bool
	PayloadSize  int

	// MaxTimeout caps the timeout a client may request.
	MaxTimeout time.Duration

	// WSRate and WSBurst pace echo requests on a WebSocket session.
	WSRate  float64
	WSBurst int
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Timeout:      time.Second,
		TTL:          128,
		PayloadSize:  32,
		MaxTimeout:   10 * time.Second,
		WSRate:       10,
		WSBurst:      5,
	}
}

// Server is an HTTP server for health check and probe endpoints.
type Server struct {
	cfg      ServerConfig
	pinger   Pinger
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
	running  atomic.Bool
	started  time.Time

	probes   atomic.Uint64
	failures atomic.Uint64
	sessions atomic.Int64
}

// NewServer creates a new health check server.
func NewServer(cfg ServerConfig, pinger Pinger) *Server {
	s := &Server{
		cfg:     cfg,
		pinger:  pinger,
		logger:  logging.NopLogger(),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	// Probe endpoints
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/ping/ws", s.handlePingWebSocket)

	// pprof debug endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// SetLogger sets the logger. Call before Start.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger.With(slog.String(logging.KeyComponent, "health"))
	}
}

// SetMetrics enables metrics recording and serves g on /metrics. A nil g
// serves the default gatherer.
func (s *Server) SetMetrics(m *metrics.Metrics, g prometheus.Gatherer) {
	s.metrics = m
	s.gatherer = g
}

// Start starts the health check server.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running.Store(true)

	s.logger.Info("health server started", logging.KeyListen, ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server failed", logging.KeyError, err)
		}
	}()

	return nil
}

// Stop stops the health check server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.Shutdown(ctx)
}

// Shutdown stops the server, waiting for active requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}

	s.logger.Info("health server stopping")
	return s.server.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Handler returns the HTTP handler for embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Stats returns a snapshot of the probe counters.
func (s *Server) Stats() Stats {
	return Stats{
		Probes:     s.probes.Load(),
		Failures:   s.failures.Load(),
		WSSessions: s.sessions.Load(),
	}
}

// handleHealth handles the basic health check endpoint.
// Returns 200 if the server is responding.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

// handleHealthz handles the detailed health check endpoint.
// Returns 200 with JSON stats if a pinger is configured, 503 otherwise.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.pinger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unavailable",
			"running": false,
		})
		return
	}

	stats := s.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"running":      true,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"probes":       stats.Probes,
		"failures":     stats.Failures,
		"ws_sessions":  stats.WSSessions,
		"max_payload":  ping.MaxPayload,
		"max_timeout":  s.cfg.MaxTimeout.String(),
		"payload_size": humanize.IBytes(uint64(s.cfg.PayloadSize)),
		"host":         sysinfo.Collect(),
	})
}

// handleReady handles the readiness probe endpoint.
// Returns 200 if the server can send probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	if s.pinger == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY\n"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY\n"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.gatherer == nil {
		promhttp.Handler().ServeHTTP(w, r)
		return
	}
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// probe holds the parameters of one echo request.
type probe struct {
	addr    netip.Addr
	timeout time.Duration
	size    int
	opts    ping.Options
}

// probeParams reads probe parameters, falling back to the configured
// defaults. get returns "" for absent parameters.
func (s *Server) probeParams(get func(string) string) (probe, error) {
	p := probe{
		timeout: s.cfg.Timeout,
		size:    s.cfg.PayloadSize,
		opts: ping.Options{
			TTL:          s.cfg.TTL,
			DontFragment: s.cfg.DontFragment,
		},
	}

	if v := get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return p, errors.New("invalid timeout")
		}
		p.timeout = d
	}
	if s.cfg.MaxTimeout > 0 && p.timeout > s.cfg.MaxTimeout {
		return p, errors.New("timeout exceeds " + s.cfg.MaxTimeout.String())
	}

	if v := get("size"); v != "" {
		n, err := humanize.ParseBytes(v)
		if err != nil {
			return p, errors.New("invalid size")
		}
		if n > uint64(ping.MaxPayload) {
			return p, errors.New("size exceeds " + strconv.Itoa(ping.MaxPayload) + " bytes")
		}
		p.size = int(n)
	}

	if v := get("ttl"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || n == 0 {
			return p, errors.New("invalid ttl")
		}
		p.opts.TTL = uint8(n)
	}

	if v := get("df"); v != "" {
		df, err := strconv.ParseBool(v)
		if err != nil {
			return p, errors.New("invalid df")
		}
		p.opts.DontFragment = df
	}

	return p, nil
}

// resolve parses dest as an address or looks it up as a host name.
func resolve(ctx context.Context, dest string) (netip.Addr, error) {
	if dest == "" {
		return netip.Addr{}, errors.New("dest is required")
	}
	if addr, err := netip.ParseAddr(dest); err == nil {
		return addr, nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", dest)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, errors.New("no addresses for " + dest)
	}
	return addrs[0].Unmap(), nil
}

// echo sends one probe and updates the server counters.
func (s *Server) echo(p probe) (ping.Reply, error) {
	s.probes.Add(1)
	reply, err := s.pinger.SendPing(p.addr, p.timeout, ping.Payload(p.size), &p.opts)
	if err != nil {
		s.failures.Add(1)
	}
	return reply, err
}

// probeReply is the JSON body of a completed probe.
type probeReply struct {
	Type     string `json:"type,omitempty"`
	Sequence *int   `json:"sequence,omitempty"`
	Dest     string `json:"destination,omitempty"`
	Address  string `json:"address"`
	RTT      uint32 `json:"rtt_ms"`
	TTL      uint8  `json:"ttl,omitempty"`
	Size     int    `json:"size"`
}

// probeError is the JSON body of a failed probe.
type probeError struct {
	Type     string `json:"type,omitempty"`
	Sequence *int   `json:"sequence,omitempty"`
	Dest     string `json:"destination,omitempty"`
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Status   string `json:"status,omitempty"`
	Code     uint32 `json:"code,omitempty"`
}

func newProbeError(err error) probeError {
	pe := probeError{Error: err.Error()}
	var e *status.Error
	if errors.As(err, &e) {
		pe.Kind = e.Kind.String()
		pe.Code = e.Code
		if e.Kind == status.KindIP {
			pe.Status = status.StatusName(e.Code)
		}
	}
	return pe
}

// httpStatus maps a ping error onto an HTTP status code.
func httpStatus(err error) int {
	switch status.KindOf(err) {
	case status.KindBadParameter, status.KindDataSizeTooBig:
		return http.StatusBadRequest
	case status.KindTimedOut:
		return http.StatusGatewayTimeout
	case status.KindIP:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handlePing sends one echo request.
// GET /ping?dest=<host>[&timeout=<duration>][&size=<bytes>][&ttl=<n>][&df=<bool>]
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pinger == nil {
		http.Error(w, "ping not available", http.StatusServiceUnavailable)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordHTTPProbe("ping")
	}

	q := r.URL.Query()
	dest := q.Get("dest")

	p, err := s.probeParams(q.Get)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, probeError{Dest: dest, Error: err.Error(), Kind: status.KindBadParameter.String()})
		return
	}

	p.addr, err = resolve(r.Context(), dest)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, probeError{Dest: dest, Error: err.Error(), Kind: status.KindBadParameter.String()})
		return
	}

	reply, err := s.echo(p)
	if err != nil {
		pe := newProbeError(err)
		pe.Dest = dest
		s.logger.Debug("probe failed",
			logging.KeyAddress, p.addr.String(),
			logging.KeyRemoteAddr, r.RemoteAddr,
			logging.KeyError, err)
		writeJSON(w, httpStatus(err), pe)
		return
	}

	writeJSON(w, http.StatusOK, probeReply{
		Dest:    dest,
		Address: reply.Address.String(),
		RTT:     reply.RTT,
		TTL:     p.opts.TTL,
		Size:    p.size,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
