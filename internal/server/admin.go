// Package server exposes the admin operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"starterlock/internal/api"
	"starterlock/internal/constants"
	"starterlock/internal/database"
	"starterlock/internal/domain"
	"starterlock/internal/middleware"
	"starterlock/internal/service"
	"starterlock/internal/state"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// DefaultActor names requests that carry no operator header.
const DefaultActor = "API"

type Admin interface {
	Status(ctx context.Context, name string) (*service.PlayerStatus, error)
	Lock(ctx context.Context, actor domain.PlayerIdentity, name, reason string) (*domain.PlayerRecord, error)
	Unlock(ctx context.Context, actor domain.PlayerIdentity, name string) (*domain.PlayerRecord, error)
	LockAll(ctx context.Context, actor domain.PlayerIdentity, reason string) (service.BulkResult, error)
	UnlockAll(ctx context.Context, actor domain.PlayerIdentity) (service.BulkResult, error)
	Reload(ctx context.Context, actor domain.PlayerIdentity) error
	Flush(ctx context.Context) service.FlushResult
	List(ctx context.Context, limit, offset int) (*service.Page, error)
	Stats() state.Stats
}

type Online interface {
	Lookup(name string) (domain.PlayerIdentity, bool)
}

// Options controls who may reach the admin API.
type Options struct {
	// Token is the bearer token required on every request. Empty rejects all.
	Token string
	// AllowedOrigins lists browser origins that may call the API. Requests
	// from any other origin are refused; requests without one are not.
	AllowedOrigins []string
}

type AdminServer struct {
	admin  Admin
	online Online
	opts   Options
	logger zerolog.Logger
}

func NewAdminServer(admin Admin, online Online, opts Options, logger zerolog.Logger) *AdminServer {
	return &AdminServer{
		admin:  admin,
		online: online,
		opts:   opts,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Handler builds the router behind request IDs, panic recovery, the origin
// guard, CORS and bearer auth.
func (s *AdminServer) Handler() http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.health).Methods(http.MethodGet)
	v1.HandleFunc("/players", s.listPlayers).Methods(http.MethodGet)
	v1.HandleFunc("/players/{name}", s.getPlayer).Methods(http.MethodGet)
	v1.HandleFunc("/players/{name}/lock", s.lockPlayer).Methods(http.MethodPost)
	v1.HandleFunc("/players/{name}/unlock", s.unlockPlayer).Methods(http.MethodPost)
	v1.HandleFunc("/lockall", s.lockAll).Methods(http.MethodPost)
	v1.HandleFunc("/unlockall", s.unlockAll).Methods(http.MethodPost)
	v1.HandleFunc("/reload", s.reload).Methods(http.MethodPost)
	v1.HandleFunc("/flush", s.flush).Methods(http.MethodPost)

	var h http.Handler = middleware.Auth(s.opts.Token, s.logger)(r)
	// cors treats an empty origin list as "allow all", so it is only mounted
	// when origins are configured. The origin guard covers the empty case.
	if len(s.opts.AllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", api.OperatorHeader},
		}).Handler(h)
	}
	h = middleware.AllowOrigins(s.opts.AllowedOrigins, s.logger)(h)

	return middleware.RequestID(s.logger)(middleware.Recovery(s.logger)(h))
}

func (s *AdminServer) health(w http.ResponseWriter, r *http.Request) {
	stats := s.admin.Stats()
	writeJSON(w, http.StatusOK, api.Health{
		Status:       "ok",
		CacheEntries: stats.Entries,
		CacheDirty:   stats.Dirty,
	})
}

func (s *AdminServer) listPlayers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.DefaultListLimit)
	if err != nil || limit <= 0 {
		s.writeError(w, r, badRequest("limit must be a positive integer"))
		return
	}
	limit = min(limit, constants.MaxListLimit)

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.writeError(w, r, badRequest("offset must be a non-negative integer"))
		return
	}

	page, err := s.admin.List(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := api.PlayerList{
		Players: make([]api.Player, 0, len(page.Players)),
		Total:   page.Total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, p := range page.Players {
		_, online := s.online.Lookup(p.Name)
		resp.Players = append(resp.Players, api.PlayerFromRecord(p, online))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *AdminServer) getPlayer(w http.ResponseWriter, r *http.Request) {
	status, err := s.admin.Status(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PlayerFromRecord(status.Record, status.Online))
}

func (s *AdminServer) lockPlayer(w http.ResponseWriter, r *http.Request) {
	var req api.LockRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, badRequest("invalid request body"))
		return
	}

	record, err := s.admin.Lock(r.Context(), actorOf(r), mux.Vars(r)["name"], strings.TrimSpace(req.Reason))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePlayer(w, record)
}

func (s *AdminServer) unlockPlayer(w http.ResponseWriter, r *http.Request) {
	record, err := s.admin.Unlock(r.Context(), actorOf(r), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePlayer(w, record)
}

func (s *AdminServer) lockAll(w http.ResponseWriter, r *http.Request) {
	var req api.LockRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, badRequest("invalid request body"))
		return
	}

	result, err := s.admin.LockAll(r.Context(), actorOf(r), strings.TrimSpace(req.Reason))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.BulkResponse{Total: result.Total, Succeeded: result.Succeeded})
}

func (s *AdminServer) unlockAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.admin.UnlockAll(r.Context(), actorOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.BulkResponse{Total: result.Total, Succeeded: result.Succeeded})
}

func (s *AdminServer) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.Reload(r.Context(), actorOf(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) flush(w http.ResponseWriter, r *http.Request) {
	result := s.admin.Flush(r.Context())
	writeJSON(w, http.StatusOK, api.FlushResponse{Flushed: result.Flushed, Failed: result.Failed})
}

func (s *AdminServer) writePlayer(w http.ResponseWriter, record *domain.PlayerRecord) {
	_, online := s.online.Lookup(record.Name)
	writeJSON(w, http.StatusOK, api.PlayerFromRecord(record, online))
}

type requestError struct {
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{message: message}
}

func (s *AdminServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.As(err, &reqErr):
		status, message = http.StatusBadRequest, reqErr.message
	case errors.Is(err, domain.ErrPlayerNotFound):
		status, message = http.StatusNotFound, "player not found"
	case errors.Is(err, database.ErrUnavailable):
		status, message = http.StatusServiceUnavailable, "database unavailable"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("request failed")
	}
	writeJSON(w, status, api.Error{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// actorOf reads the operator header. It only names the actor for the audit
// trail; the caller has already been authenticated by token. A UUID names a
// player operator; anything else is a display name with no player behind it.
func actorOf(r *http.Request) domain.PlayerIdentity {
	name := strings.TrimSpace(r.Header.Get(api.OperatorHeader))
	if name == "" {
		return domain.PlayerIdentity{ID: uuid.Nil, Name: DefaultActor}
	}
	if id, err := uuid.Parse(name); err == nil {
		return domain.PlayerIdentity{ID: id, Name: name}
	}
	return domain.PlayerIdentity{ID: uuid.Nil, Name: name}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
