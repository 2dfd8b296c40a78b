package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/service"
	"go.uber.org/zap"
)

// statusFor сопоставляет ошибку сервиса статусу и тексту ответа.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest, msgInvalidURL
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusUnprocessableEntity, msgInvalidCode
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, msgUnknownCode
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, msgForbidden
	default:
		return http.StatusInternalServerError, msgUnknownError
	}
}

func (h *Handler) logUnexpected(err error) {
	if !service.IsClientError(err) {
		h.Logger.Error("request failed", zap.Error(err))
	}
}

func (h *Handler) writeTextError(w http.ResponseWriter, err error) {
	h.logUnexpected(err)
	status, msg := statusFor(err)
	http.Error(w, msg, status)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, err error) {
	h.logUnexpected(err)
	status, msg := statusFor(err)
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
