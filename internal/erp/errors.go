package erp

import (
	"fmt"
	"net/http"

	"github.com/bartek5186/sfa-offline/internal/domain"
)

// HTTPError – odpowiedź spoza 2xx. errors.Is mapuje ją na taksonomię domeny:
// 5xx/429/408 -> ErrNetworkUnavailable, reszta 4xx -> ErrRemoteRejected.
type HTTPError struct {
	Status int
	Method string
	Path   string
	Body   string // ucięty fragment odpowiedzi
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *HTTPError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case domain.ErrNetworkUnavailable:
		return e.Transient()
	case domain.ErrRemoteRejected:
		return !e.Transient()
	}
	return false
}
