package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/platform/httpx"
	"github.com/brodesk/brodesk/internal/rbac"
	"github.com/brodesk/brodesk/internal/shared"
)

// AuthHandler wires HTTP endpoints for registration and session flows.
type AuthHandler struct {
	logger    *slog.Logger
	service   *Service
	identity  identity.Provider
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewAuthHandler constructs an AuthHandler instance.
func NewAuthHandler(logger *slog.Logger, service *Service, provider identity.Provider, sessions *shared.SessionManager, csrf *shared.CSRFManager, mw rbac.Middleware) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		logger:    logger,
		service:   service,
		identity:  provider,
		sessions:  sessions,
		csrf:      csrf,
		rbac:      mw,
		validator: NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *AuthHandler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles())
		r.Post("/logout", h.handleLogout)
		r.Post("/refresh", h.handleRefresh)
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"brodesk_email"`
	Password string `json:"password" validate:"min=6"`
}

type sessionResponse struct {
	Account   Account   `json:"account"`
	Home      string    `json:"home"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.logFailure("register", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"account": acct,
		"message": "Account created successfully. Pending admin approval.",
	})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].StructField() == "Password" {
			httpx.RespondError(w, shared.NewValidationError("password", "Password must be at least 6 characters"))
			return
		}
		httpx.RespondError(w, shared.NewValidationError("email", "Please enter a valid email address"))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if previous := sess.Get(shared.IdentitySessionKey); previous != "" {
		if err := h.identity.SignOut(r.Context(), previous); err != nil {
			h.logger.Warn("sign out previous session", slog.Any("error", err))
		}
		sess.Clear()
	}

	idSess, acct, err := h.service.Authenticate(r.Context(), req.Email, req.Password, identity.Client{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logFailure("login", err)
		httpx.RespondError(w, err)
		return
	}

	if err := h.sessions.Renew(r.Context(), sess); err != nil {
		h.logger.Error("renew session", slog.Any("error", err))
		if signOutErr := h.identity.SignOut(r.Context(), idSess.ID); signOutErr != nil {
			h.logger.Warn("sign out after renew failure", slog.Any("error", signOutErr))
		}
		httpx.RespondError(w, err)
		return
	}
	sess.Set(shared.IdentitySessionKey, idSess.ID)
	sess.SetUser(acct.ID.String())
	token, err := h.csrf.Rotate(sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Account:   acct,
		Home:      rbac.HomePath(acct.Role),
		CSRFToken: token,
		ExpiresAt: idSess.ExpiresAt,
	})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.identity.SignOut(r.Context(), principal.SessionID); err != nil {
		h.logFailure("logout", err)
		httpx.RespondError(w, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Clear()
		h.sessions.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"redirect": rbac.EntryPath})
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	idSess, err := h.identity.Refresh(r.Context(), principal.SessionID)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.Clear()
			}
		}
		h.logFailure("refresh", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expires_at": idSess.ExpiresAt})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	acct, err := h.service.Account(r.Context(), principal.UserID)
	if err != nil {
		h.logFailure("me", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account": acct,
		"home":    rbac.HomePath(acct.Role),
	})
}

func (h *AuthHandler) logFailure(op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
		return
	}
	h.logger.Info(op+" rejected", slog.String("reason", shared.UserSafeMessage(err)))
}

// AdminHandler exposes account administration endpoints.
type AdminHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(logger *slog.Logger, service *Service) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{logger: logger, service: service}
}

// MountRoutes registers admin account routes. Callers must gate the router
// to admins.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Get("/users", h.listUsers)
	r.Post("/users/{id}/approve", h.decide(StatusApproved))
	r.Post("/users/{id}/reject", h.decide(StatusRejected))
	r.Get("/staff", h.listStaff)
	r.Get("/staff/approved", h.approvedStaff)
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	status := ApprovalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusPending
	}
	items, err := h.service.ListAccounts(r.Context(), status)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": status, "accounts": items})
}

func (h *AdminHandler) decide(outcome ApprovalStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.UUIDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		acct, err := h.service.DecideApproval(r.Context(), shared.PrincipalFromContext(r.Context()), id, outcome)
		if err != nil {
			h.logger.Warn("decide approval", slog.String("account_id", id.String()), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"account": acct})
	}
}

func (h *AdminHandler) listStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.ListStaff(r.Context())
	if err != nil {
		h.logger.Error("list staff", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if staff == nil {
		staff = []StaffMember{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (h *AdminHandler) approvedStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.ApprovedStaff(r.Context())
	if err != nil {
		h.logger.Error("approved staff", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if staff == nil {
		staff = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff": staff})
}
