package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account"
	"github.com/shekshuev/athena-backend/internal/auth"
	"github.com/shekshuev/athena-backend/internal/profile/entity"
)

// Authorizer decides whether the caller may act on an account.
// *account.Service satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, claims *auth.Claims, target uuid.UUID, privileged bool) error
}

// Handler exposes profile records under /api/accounts/{id}/profile.
type Handler struct {
	svc    *Service
	authz  Authorizer
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, authz Authorizer, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, authz: authz, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}
	q := ListQuery{}
	var err error
	query := r.URL.Query()
	if v := query.Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
	}
	if v := query.Get("offset"); v != "" {
		if q.Offset, err = strconv.Atoi(v); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
	}
	if v := query.Get("source"); v != "" {
		src := entity.Source(v)
		q.Source = &src
	}
	out, err := h.svc.List(r.Context(), accountID, q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}
	var req entity.NewRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid profile payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	rec, err := h.svc.Create(r.Context(), accountID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), accountID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	var patch entity.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.logger.Debugw("invalid profile patch", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	rec, err := h.svc.Update(r.Context(), accountID, id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), accountID, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// account parses the owning account from the path and checks that the caller
// is that account or a superadmin.
func (h *Handler) account(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return uuid.Nil, false
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.authz.Authorize(r.Context(), claims, id, false); err != nil {
		h.writeError(w, err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("recordID"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record id"})
		return uuid.Nil, false
	}
	return id, true
}

type errorBody struct {
	Error  string `json:"error"`
	Fields any    `json:"fields,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case account.IsKind(err, account.KindUnauthorized):
		h.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	case account.IsKind(err, account.KindForbidden):
		h.writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
		return
	}

	var se *ServiceError
	if !errors.As(err, &se) {
		h.logger.Errorw("unexpected profile error", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	body := errorBody{Error: se.Message}
	if len(se.Fields) > 0 {
		body.Fields = se.Fields
	}
	switch se.Kind {
	case KindNotFound:
		h.writeJSON(w, http.StatusNotFound, body)
	case KindAlreadyExists:
		h.writeJSON(w, http.StatusConflict, body)
	case KindInvalidInput:
		h.writeJSON(w, http.StatusBadRequest, body)
	default:
		h.writeJSON(w, http.StatusInternalServerError, body)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
