// Package erp to klient HTTP backendu SFA (proxy do Sankhya).
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "sfa-offline/1.0"
	maxBody          = 64 << 20
	maxErrBody       = 512
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	UserAgent  string
	DeviceID   string
	LoginPath  string
	HealthPath string
}

type Client struct {
	log  zerolog.Logger
	cfg  Config
	http *http.Client

	mu    sync.RWMutex
	token string
}

func New(log zerolog.Logger, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/api/auth/login"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api/health"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		log:   log.With().Str("component", "erp").Logger(),
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		token: cfg.Token,
	}
}

// SetToken – token sesji z logowania online (pusty = bez Authorization).
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// Fetch pobiera surowe ciało odpowiedzi (już w UTF-8) dla GET {base}{path}.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// Deliver wysyła zapis. idempotencyKey = id wpisu z kolejki, serwer może po nim deduplikować.
// Zwraca rekord odesłany przez serwer (pole "data" albo "record"), nil gdy brak.
func (c *Client) Deliver(ctx context.Context, path, idempotencyKey string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", domain.ErrInvalidOperation, err)
	}
	hdr := http.Header{}
	if idempotencyKey != "" {
		hdr.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.do(ctx, http.MethodPost, path, body, hdr)
	if err != nil {
		return nil, err
	}
	return echoedRecord(resp), nil
}

// Health – lekki GET do sprawdzenia łączności.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.cfg.HealthPath, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, hdr http.Header) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.cfg.DeviceID)
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		// timeout, odmowa połączenia, DNS, anulowany ctx – wszystko to brak sieci
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrNetworkUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		herr := &HTTPError{Status: resp.StatusCode, Method: method, Path: path, Body: strings.TrimSpace(string(snippet))}
		c.log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg("erp returned error")
		return nil, herr
	}

	// Sankhya potrafi oddać ISO-8859-1 – dekodujemy do UTF-8
	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		r = resp.Body
	}
	out, err := io.ReadAll(io.LimitReader(r, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrNetworkUnavailable, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("bytes", len(out)).
		Dur("took", time.Since(start)).
		Msg("erp ok")
	return out, nil
}

func echoedRecord(body []byte) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	for _, k := range []string{"data", "record"} {
		raw := bytes.TrimSpace(obj[k])
		if len(raw) > 0 && raw[0] == '{' {
			return raw
		}
	}
	return nil
}

// IsHTTPStatus – pomocniczo dla wywołujących, którzy chcą znać konkretny kod.
func IsHTTPStatus(err error, status int) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.Status == status
}
