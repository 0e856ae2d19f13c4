// internal/domain/errors.go
package domain

import "errors"

// Taksonomia błędów rdzenia offline. Warstwy niżej owijają je przez %w,
// wyżej sprawdzamy errors.Is.
var (
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrStorageUnavailable  = errors.New("local storage unavailable")
	ErrSchemaMismatch      = errors.New("payload schema mismatch")
	ErrNoOfflineCredential = errors.New("no offline credential for user")
	ErrWrongPassword       = errors.New("wrong password")
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrNotFound            = errors.New("record not found")
	ErrRemoteRejected      = errors.New("remote rejected request")
	ErrInvalidOperation    = errors.New("invalid operation")
)

// Transient mówi, czy błąd kwalifikuje się do ponowienia.
func Transient(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}
