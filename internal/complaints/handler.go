package complaints

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/platform/httpx"
	"github.com/brodesk/brodesk/internal/shared"
)

// IdempotencyHeader carries the optional client key for complaint submission.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes complaint endpoints for each role.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes open to any signed-in account.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
}

// MountStudentRoutes registers student routes.
func (h *Handler) MountStudentRoutes(r chi.Router) {
	r.Get("/complaints", h.listOwn)
	r.Post("/complaints", h.submit)
}

// MountStaffRoutes registers staff routes.
func (h *Handler) MountStaffRoutes(r chi.Router) {
	r.Get("/complaints", h.listAssigned)
	r.Post("/complaints/{id}/status", h.advance)
	r.Get("/stats", h.stats)
}

// MountAdminRoutes registers admin routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/complaints", h.listAll)
	r.Post("/complaints/{id}/assign", h.assign)
	r.Post("/complaints/{id}/status", h.advance)
	r.Get("/stats", h.stats)
}

type assignRequest struct {
	StaffID string `json:"staff_id"`
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var in SubmitInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	principal := shared.PrincipalFromContext(r.Context())
	c, err := h.service.Submit(r.Context(), principal.UserID, in)
	if err != nil {
		h.fail(w, "submit complaint", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"complaint": c})
}

func (h *Handler) listOwn(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	items, err := h.service.ListForStudent(r.Context(), principal.UserID)
	h.respondList(w, "list own complaints", items, err)
}

func (h *Handler) listAssigned(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	items, err := h.service.ListForAssignee(r.Context(), principal.UserID)
	h.respondList(w, "list assigned complaints", items, err)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListAll(r.Context())
	h.respondList(w, "list complaints", items, err)
}

func (h *Handler) respondList(w http.ResponseWriter, op string, items []Complaint, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	if items == nil {
		items = []Complaint{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"complaints": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get complaint", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"complaint": c})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("staff_id", "Please select a staff member"))
		return
	}
	c, err := h.service.Assign(r.Context(), shared.PrincipalFromContext(r.Context()), id, staffID)
	if err != nil {
		h.fail(w, "assign complaint", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"complaint": c})
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Advance(r.Context(), shared.PrincipalFromContext(r.Context()), id, req.Status)
	if err != nil {
		h.fail(w, "advance complaint", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"complaint": c})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		h.fail(w, "complaint stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Info(op+" rejected", slog.String("reason", shared.UserSafeMessage(err)))
	}
	httpx.RespondError(w, err)
}
