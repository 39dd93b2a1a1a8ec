package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nigussolomon/nonceauth"
	"github.com/nigussolomon/nonceauth/middleware"
)

const maxBodyBytes = 1 << 20

// Handler serves the auth routes for one Engine.
type Handler struct {
	engine *nonceauth.Engine
	cfg    nonceauth.Config
	logger *slog.Logger
}

// New returns a Handler. A nil logger discards.
func New(engine *nonceauth.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		engine: engine,
		cfg:    engine.Config(),
		logger: logger,
	}
}

// Register mounts every route on mux under the configured prefix.
func (h *Handler) Register(mux *http.ServeMux) {
	guard := middleware.Guard(h.engine)

	mux.Handle("POST "+h.path("register"), h.gate("register", http.HandlerFunc(h.register)))
	mux.Handle("POST "+h.path("login"), h.gate("login", http.HandlerFunc(h.login)))
	mux.Handle("POST "+h.path("refresh"), h.gate("refresh", http.HandlerFunc(h.refresh)))
	mux.Handle("POST "+h.path("logout"), h.gate("logout", guard(http.HandlerFunc(h.logout))))
	mux.Handle("GET "+h.path("me"), h.gate("me", guard(http.HandlerFunc(h.me))))
}

// Routes returns a mux with every route mounted.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func (h *Handler) path(name string) string {
	return strings.TrimRight(h.cfg.Routes.Prefix, "/") + "/" + name
}

// gate answers 403 for disabled routes and attaches request metadata to the
// context for everything else.
func (h *Handler) gate(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.RouteDisabled(name) {
			writeError(w, http.StatusForbidden, fmt.Sprintf("Route %s is disabled", h.path(name)))
			return
		}
		next.ServeHTTP(w, r.WithContext(requestContext(r)))
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decode(w, r)
	if !ok {
		return
	}

	fields := h.cfg.Fields
	req := nonceauth.RegisterRequest{
		Identifier: stringField(body, fields.Identifier),
		Passkey:    stringField(body, fields.Passkey),
	}
	for k, v := range body {
		if k == fields.Identifier || k == fields.Passkey {
			continue
		}
		if s, ok := v.(string); ok {
			if req.Attributes == nil {
				req.Attributes = make(map[string]string)
			}
			req.Attributes[k] = s
		}
	}

	user, err := h.engine.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decode(w, r)
	if !ok {
		return
	}

	tokens, err := h.engine.Login(r.Context(), nonceauth.Credentials{
		Identifier: stringField(body, h.cfg.Fields.Identifier),
		Passkey:    stringField(body, h.cfg.Fields.Passkey),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(h.cfg.Routes.RefreshHeader))
	if token == "" {
		token = h.refreshFromBody(w, r)
	}
	if token == "" {
		writeError(w, http.StatusForbidden, "Refresh token is required")
		return
	}

	tokens, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	done, err := h.engine.Logout(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": done})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// refreshFromBody reads the refresh token from a JSON body. An empty or
// unreadable body yields "" and is answered as a missing token.
func (h *Handler) refreshFromBody(w http.ResponseWriter, r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(stringField(body, h.cfg.Routes.RefreshBodyField))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return body, true
}

// fail maps engine errors to status codes. Anything without a kind is an
// infrastructure failure and is logged, never echoed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var e *nonceauth.Error
	if errors.As(err, &e) {
		writeError(w, statusFor(e.Kind), e.Message)
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("err", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func statusFor(kind error) int {
	switch {
	case errors.Is(kind, nonceauth.ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, nonceauth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, nonceauth.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if id == "" {
		id = uuid.NewString()
	}
	ctx = nonceauth.WithRequestID(ctx, id)

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return nonceauth.WithClientIP(ctx, host)
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{StatusCode: status, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
