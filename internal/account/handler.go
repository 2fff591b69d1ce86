package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account/entity"
	"github.com/shekshuev/athena-backend/internal/auth"
)

// Handler exposes HTTP endpoints for registration and account management.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, uuid.Nil, true) {
		return
	}
	q := ListQuery{}
	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if q.Offset, err = strconv.Atoi(v); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
	}
	out, err := h.svc.List(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, id, false) {
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var patch entity.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.logger.Debugw("invalid patch payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if !h.authorize(w, r, id, patch.Privileged()) {
		return
	}
	a, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, id, false) {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, target uuid.UUID, privileged bool) bool {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := h.svc.Authorize(r.Context(), claims, target, privileged); err != nil {
		h.writeError(w, err)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

type errorBody struct {
	Error  string `json:"error"`
	Fields any    `json:"fields,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrPasswordMismatch) {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	var se *ServiceError
	if !errors.As(err, &se) {
		h.logger.Errorw("unexpected account error", "err", err)
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
	case KindUnauthorized:
		h.writeJSON(w, http.StatusUnauthorized, body)
	case KindForbidden:
		h.writeJSON(w, http.StatusForbidden, body)
	default:
		h.writeJSON(w, http.StatusInternalServerError, body)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
