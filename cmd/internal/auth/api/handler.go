package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"authgate/cmd/account"
	"authgate/cmd/internal/auth/flows"
	"authgate/cmd/internal/auth/gate"
	"authgate/cmd/internal/auth/session"
	"authgate/cmd/security/password"
)

// Flows is the subset of flows.Service the HTTP layer drives.
type Flows interface {
	Register(ctx context.Context, in flows.RegisterInput) (flows.Result, error)
	RegisterAdmin(ctx context.Context, in flows.RegisterAdminInput) (flows.Result, error)
	Login(ctx context.Context, email, pw string) (flows.Result, error)
	Logout(ctx context.Context, id session.Identity) error
	Me(ctx context.Context, id session.Identity) (account.View, error)
	ListUsers(ctx context.Context) ([]account.View, error)
	DeleteUser(ctx context.Context, id, email string) (bool, error)
}

// access is the pre-check a route applies before its handler runs.
type access int

const (
	accessOpen access = iota
	accessAuthenticated
	accessAdmin
)

type route struct {
	method string
	access access
	serve  http.HandlerFunc
}

// Handler wires HTTP auth endpoints to the flows service.
type Handler struct {
	log   *slog.Logger
	cfg   Config
	flows Flows
	gate  *gate.Gate

	routes map[string][]route
}

// NewHandler constructs an auth Handler. v validates bearer credentials for gated routes.
func NewHandler(log *slog.Logger, f Flows, v gate.Validator, cfg Config) (*Handler, error) {
	if f == nil || v == nil {
		return nil, errors.New("authapi: nil flows or validator")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{log: log, cfg: cfg, flows: f}
	h.gate = gate.New(v, h.reject)

	registerAccess := accessOpen
	if cfg.RegisterRequiresAdmin {
		registerAccess = accessAdmin
	}
	h.routes = map[string][]route{
		"/register":       {{method: http.MethodPost, access: registerAccess, serve: h.handleRegister}},
		"/admin/register": {{method: http.MethodPost, access: accessOpen, serve: h.handleRegisterAdmin}},
		"/login":          {{method: http.MethodPost, access: accessOpen, serve: h.handleLogin}},
		"/logout":         {{method: http.MethodPost, access: accessAuthenticated, serve: h.handleLogout}},
		"/me":             {{method: http.MethodGet, access: accessAuthenticated, serve: h.handleMe}},
		"/admin/users": {
			{method: http.MethodGet, access: accessAdmin, serve: h.handleListUsers},
			{method: http.MethodDelete, access: accessAdmin, serve: h.handleDeleteUser},
		},
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	for path, routes := range h.routes {
		mux.Handle(path, h.dispatch(routes))
	}
}

// dispatch selects the route for the request method and applies its pre-check.
func (h *Handler) dispatch(routes []route) http.Handler {
	gated := make(map[string]http.Handler, len(routes))
	allow := make([]string, 0, len(routes))
	for _, rt := range routes {
		var next http.Handler = rt.serve
		switch rt.access {
		case accessAuthenticated:
			next = h.gate.RequireAuth(next)
		case accessAdmin:
			next = h.gate.RequireRole(account.RoleAdmin, next)
		}
		gated[rt.method] = next
		allow = append(allow, rt.method)
	}
	allowHeader := strings.Join(allow, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next, ok := gated[r.Method]
		if !ok {
			w.Header().Set("Allow", allowHeader)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reject renders gate failures. Every authentication failure gets the same body.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gate.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "forbidden", "Forbidden")
	case errors.Is(err, session.ErrStore):
		h.log.Error("auth.gate.store.fail", "err", err, "path", r.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "server_error", "Server error")
	default:
		writeMessage(w, http.StatusUnauthorized, "not_authorized", "Not authorized")
	}
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.flows.Register(r.Context(), flows.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeFlowError(w, err, flowMessages{
			missing:  "Name, email, and password are required",
			conflict: "User with this email already exists",
		})
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse("User registered successfully", res))
}

func (h *Handler) handleRegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerAdminRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.flows.RegisterAdmin(r.Context(), flows.RegisterAdminInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		AdminSecret: req.AdminToken,
	})
	if err != nil {
		h.writeFlowError(w, err, flowMessages{
			missing:  "Fields required",
			conflict: "Admin with this email already exists",
		})
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse("Admin registered successfully", res))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.flows.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeFlowError(w, err, flowMessages{missing: "Email and password are required"})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse("Logged in", res))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		h.reject(w, r, gate.ErrMissingCredential)
		return
	}

	if err := h.flows.Logout(r.Context(), id); err != nil {
		h.writeFlowError(w, err, flowMessages{})
		return
	}

	writeMessage(w, http.StatusOK, "", "Logged out successfully")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		h.reject(w, r, gate.ErrMissingCredential)
		return
	}

	view, err := h.flows.Me(r.Context(), id)
	if err != nil {
		h.writeFlowError(w, err, flowMessages{})
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "OK", User: &view})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.flows.ListUsers(r.Context())
	if err != nil {
		h.writeFlowError(w, err, flowMessages{})
		return
	}

	writeJSON(w, http.StatusOK, usersResponse{Message: "OK", Users: users})
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	deleted, err := h.flows.DeleteUser(r.Context(), req.ID, req.Email)
	if err != nil {
		h.writeFlowError(w, err, flowMessages{missing: "ID and email are required"})
		return
	}
	if !deleted {
		writeMessage(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	writeMessage(w, http.StatusOK, "", "User deleted successfully")
}

// ---- error mapping ----

// flowMessages carries the route-specific wording for validation and conflict failures.
type flowMessages struct {
	missing  string
	conflict string
}

func (h *Handler) writeFlowError(w http.ResponseWriter, err error, msgs flowMessages) {
	switch flows.KindOf(err) {
	case flows.KindValidation:
		msg := msgs.missing
		switch {
		case password.IsPolicyViolation(err):
			msg = "Password does not meet requirements"
		case msg == "":
			msg = "Invalid request"
		}
		writeMessage(w, http.StatusBadRequest, "invalid_request", msg)
	case flows.KindAuth:
		if errors.Is(err, flows.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
			return
		}
		writeMessage(w, http.StatusUnauthorized, "not_authorized", "Not authorized")
	case flows.KindForbidden:
		writeMessage(w, http.StatusForbidden, "forbidden", "Invalid admin token")
	case flows.KindConflict:
		msg := msgs.conflict
		if msg == "" {
			msg = "Already exists"
		}
		writeMessage(w, http.StatusConflict, "conflict", msg)
	default:
		h.log.Error("auth.flow.fail", "err", err)
		writeMessage(w, http.StatusInternalServerError, "server_error", "Server error")
	}
}

func sessionResponse(msg string, res flows.Result) messageResponse {
	user := res.Account
	return messageResponse{
		Message: msg,
		Token:   res.Credential.Token,
		User:    &user,
	}
}
