package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/rs/zerolog/hlog"
)

// APIError – ciało odpowiedzi błędu; Message gotowy do pokazania użytkownikowi.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrInvalidOperation, "invalid_operation", http.StatusBadRequest},
	{domain.ErrNoOfflineCredential, "no_offline_credential", http.StatusUnauthorized},
	{domain.ErrWrongPassword, "wrong_password", http.StatusUnauthorized},
	{domain.ErrNotFound, "not_found", http.StatusNotFound},
	{domain.ErrSyncInProgress, "sync_in_progress", http.StatusConflict},
	{domain.ErrRemoteRejected, "remote_rejected", http.StatusUnprocessableEntity},
	{domain.ErrSchemaMismatch, "schema_mismatch", http.StatusBadGateway},
	{domain.ErrNetworkUnavailable, "network_unavailable", http.StatusServiceUnavailable},
	{domain.ErrStorageUnavailable, "storage_unavailable", http.StatusInsufficientStorage},
}

func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)
	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Str("code", code).Msg("request failed")
	writeJSON(w, status, errorEnvelope{Error: APIError{Code: code, Message: domain.UserMessage(err)}})
}
