package ipc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowlytix/dbgate"
)

// Channel names exposed on the boundary. Exactly these three are ever
// registered; the surface has no other request-carrying routes.
const (
	ChannelQuery       = "db:query"
	ChannelExecute     = "db:execute"
	ChannelTransaction = "db:transaction"
)

// channelHandler serves one registered channel.
type channelHandler func(w http.ResponseWriter, r *http.Request)

// Server carries the gateway across the process boundary. Channels are held
// in a registry dispatched through the router so registration is symmetric:
// RegisterChannels adds all three, UnregisterChannels removes all three, and
// a duplicate registration fails with a Protocol error before any channel is
// touched.
type Server struct {
	gateway *dbgate.Gateway
	logger  logrus.FieldLogger
	router  chi.Router

	mu       sync.RWMutex
	registry map[string]channelHandler
}

// NewServer creates a server over gateway. Pass a logger shared with the
// gateway so audit entries and boundary logs interleave in one stream.
func NewServer(gateway *dbgate.Gateway, logger logrus.FieldLogger) *Server {
	s := &Server{
		gateway:  gateway,
		logger:   logger,
		registry: make(map[string]channelHandler),
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Post("/rpc/{channel}", s.dispatch)
	r.Get("/db:stats", s.handleStats)
	r.Get("/healthz", s.handleHealth)
	s.router = r
	return s
}

// Handler returns the HTTP handler for the boundary surface.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RegisterChannels registers the three gateway channels. Registering while
// any of them is already present is a Protocol error and leaves the registry
// unchanged.
func (s *Server) RegisterChannels() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := []string{ChannelQuery, ChannelExecute, ChannelTransaction}
	for _, ch := range channels {
		if _, exists := s.registry[ch]; exists {
			return dbgate.WrapError(dbgate.KindProtocol,
				fmt.Sprintf("channel %s already registered", ch),
				dbgate.ErrChannelRegistered)
		}
	}

	s.registry[ChannelQuery] = s.handleQuery
	s.registry[ChannelExecute] = s.handleExecute
	s.registry[ChannelTransaction] = s.handleTransaction
	s.logger.WithField("channels", channels).Info("gateway channels registered")
	return nil
}

// UnregisterChannels removes all three channels. Safe to call when nothing is
// registered.
func (s *Server) UnregisterChannels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, ChannelQuery)
	delete(s.registry, ChannelExecute)
	delete(s.registry, ChannelTransaction)
	s.logger.Info("gateway channels unregistered")
}

// RegisteredChannels returns the currently registered channel names in a
// stable order.
func (s *Server) RegisteredChannels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.registry))
	for _, ch := range []string{ChannelQuery, ChannelExecute, ChannelTransaction} {
		if _, ok := s.registry[ch]; ok {
			names = append(names, ch)
		}
	}
	return names
}

// Stats describes the boundary without touching the database.
func (s *Server) Stats() dbgate.GatewayStats {
	conn := s.gateway.Stats()
	return dbgate.GatewayStats{
		IsConnected:        conn.IsConnected,
		RegisteredChannels: s.RegisteredChannels(),
		Connection:         conn,
	}
}

// requestID tags every request with a UUID for audit correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.logger.WithFields(logrus.Fields{
			"request_id": id,
			"path":       r.URL.Path,
		}).Debug("request received")
		next.ServeHTTP(w, r)
	})
}

// dispatch routes a request to its registered channel handler. The server
// never interprets SQL itself; all inspection happens in the gateway's
// validator.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	s.mu.RLock()
	handler, ok := s.registry[channel]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, dbgate.WrapError(dbgate.KindProtocol,
			fmt.Sprintf("channel %s is not registered", channel),
			ErrUnknownChannel))
		return
	}
	handler(w, r)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req StatementRequest
	if err := readRequest(r.Body, &req); err != nil {
		s.writeError(w, dbgate.WrapError(dbgate.KindValidation, "malformed request", err))
		return
	}
	params, err := decodeParams(req.Params)
	if err != nil {
		s.writeError(w, dbgate.WrapError(dbgate.KindValidation, "invalid parameters", err))
		return
	}

	result, err := s.gateway.Query(r.Context(), req.SQL, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req StatementRequest
	if err := readRequest(r.Body, &req); err != nil {
		s.writeError(w, dbgate.WrapError(dbgate.KindValidation, "malformed request", err))
		return
	}
	params, err := decodeParams(req.Params)
	if err != nil {
		s.writeError(w, dbgate.WrapError(dbgate.KindValidation, "invalid parameters", err))
		return
	}

	result, err := s.gateway.Execute(r.Context(), req.SQL, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := readRequest(r.Body, &req); err != nil {
		s.writeError(w, dbgate.WrapError(dbgate.KindValidation, "malformed request", err))
		return
	}
	ops, err := decodeOperations(req.Operations)
	if err != nil {
		s.writeError(w, dbgate.WrapError(dbgate.KindValidation, "invalid operations", err))
		return
	}

	result, err := s.gateway.Transaction(r.Context(), ops)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.EnsureReady(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithField("error", err.Error()).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	we := toWireError(err)
	s.writeJSON(w, statusFor(we.Code), errorEnvelope{Error: we})
}
