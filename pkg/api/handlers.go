package api

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/metrics"
)

// Server holds the API server state
type Server struct {
	engine  engine.Engine
	config  ServerConfig
	deps    Deps
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewServer creates a new API server over eng. eng stays owned by the
// caller and must outlive the server.
func NewServer(eng engine.Engine, config ServerConfig, deps Deps) *Server {
	if config.MaxValueSize <= 0 {
		config.MaxValueSize = defaultMaxValueSize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		engine:  eng,
		config:  config,
		deps:    deps,
		metrics: deps.Metrics,
		logger:  logger.With("api"),
	}
}

// outstanding is implemented by engines that report their open pins.
type outstanding interface {
	Outstanding() int
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Backend:  s.engine.Backend(),
		EngineID: s.engine.ID().String(),
	}
	if o, ok := s.engine.(outstanding); ok {
		resp.Outstanding = o.Outstanding()
	}
	sendSuccess(w, resp)
}

// requestKey returns the unescaped key path parameter and the column family
// selected by ?cf=.
func requestKey(r *http.Request) ([]byte, string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		return nil, "", errors.Wrap(err, "invalid key encoding")
	}
	if key == "" {
		return nil, "", errors.New("key is required")
	}
	cf := r.URL.Query().Get("cf")
	if cf == "" {
		cf = engine.DefaultColumnFamily
	}
	return []byte(key), cf, nil
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidKey), errors.Is(err, engine.ErrUnknownColumnFamily):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleGet streams the pinned value into the response body. The value is
// released once the body has been written.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, cf, err := requestKey(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := s.engine.GetPinned(key, engine.WithColumnFamily(cf))
	if err != nil {
		s.recordRead(metrics.ReadFailure)
		s.logger.Errorf("get %q request_id=%s: %v", key, RequestID(r.Context()), err)
		sendError(w, "Failed to get key: "+err.Error(), statusFor(err))
		return
	}
	if value == nil {
		s.recordRead(metrics.ReadAbsent)
		sendError(w, "Key not found", http.StatusNotFound)
		return
	}
	defer value.Close()
	s.recordRead(metrics.ReadFound)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(value.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := value.WriteTo(w); err != nil {
		s.logger.Debugf("get %q request_id=%s: client write: %v", key, RequestID(r.Context()), err)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key, cf, err := requestKey(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxValueSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Value too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	opts := []engine.WriteOption{engine.WithWriteColumnFamily(cf)}
	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		opts = append(opts, engine.WithSync())
	}
	if err := s.engine.Put(key, body, opts...); err != nil {
		s.recordWrite("put", false)
		s.logger.Errorf("put %q request_id=%s: %v", key, RequestID(r.Context()), err)
		sendError(w, "Failed to put key-value: "+err.Error(), statusFor(err))
		return
	}
	s.recordWrite("put", true)
	sendSuccess(w, WriteResponse{Key: string(key), ColumnFamily: cf, Bytes: len(body)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, cf, err := requestKey(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.engine.Delete(key, engine.WithWriteColumnFamily(cf)); err != nil {
		s.recordWrite("delete", false)
		s.logger.Errorf("delete %q request_id=%s: %v", key, RequestID(r.Context()), err)
		sendError(w, "Failed to delete key: "+err.Error(), statusFor(err))
		return
	}
	s.recordWrite("delete", true)
	sendSuccess(w, WriteResponse{Key: string(key), ColumnFamily: cf})
}

func (s *Server) recordRead(result string) {
	if s.metrics != nil {
		s.metrics.RecordRead(s.engine.Backend(), result)
	}
}

func (s *Server) recordWrite(op string, success bool) {
	if s.metrics != nil {
		s.metrics.RecordDBOperation(op, success)
	}
}
