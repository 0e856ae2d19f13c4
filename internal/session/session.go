// Package session łączy logowanie online, awaryjne logowanie offline
// i zapamiętanego bieżącego użytkownika.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/erp"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/bartek5186/sfa-offline/internal/syncer"
	"github.com/bartek5186/sfa-offline/internal/vault"
	"github.com/rs/zerolog"
)

const (
	kvUser  = "session.user"
	kvToken = "session.token"
)

// Authenticator – logowanie w backendzie (erp.Client).
type Authenticator interface {
	Login(ctx context.Context, email, password string) (erp.LoginResult, error)
	SetToken(token string)
}

// Prefetcher – pełny sync po zalogowaniu (syncer.Engine).
type Prefetcher interface {
	RunFullSync(ctx context.Context, uc syncer.UserContext) (syncer.SyncResult, error)
}

type LoginResult struct {
	User    domain.UserProfile `json:"user"`
	Offline bool               `json:"offline"`
	Sync    *syncer.SyncResult `json:"sync,omitempty"`
}

type Manager struct {
	log      zerolog.Logger
	auth     Authenticator
	vault    *vault.Vault
	store    *store.Store
	prefetch Prefetcher

	mu        sync.Mutex
	listeners []func(syncer.UserContext)
}

func New(log zerolog.Logger, auth Authenticator, v *vault.Vault, st *store.Store, prefetch Prefetcher) *Manager {
	return &Manager{
		log:      log.With().Str("component", "session").Logger(),
		auth:     auth,
		vault:    v,
		store:    st,
		prefetch: prefetch,
	}
}

// OnUserChange – wołane po loginie, logoucie i Restore (np. Syncer.SetUser).
func (m *Manager) OnUserChange(fn func(syncer.UserContext)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) notify(uc syncer.UserContext) {
	m.mu.Lock()
	ls := append([]func(syncer.UserContext){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(uc)
	}
}

func userContext(u domain.UserProfile) syncer.UserContext {
	return syncer.UserContext{Email: u.Email, CodVendedor: u.CodVendedor}
}

// Login: najpierw online; tylko brak sieci przełącza na weryfikację offline.
// Złe hasło z serwera nie jest sprawdzane lokalnie.
func (m *Manager) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password required", domain.ErrInvalidOperation)
	}
	log := m.log.With().Str("email", strings.ToLower(email)).Logger()

	res, err := m.auth.Login(ctx, email, password)
	switch {
	case err == nil:
		return m.online(ctx, log, res, password)
	case domain.Transient(err):
		log.Info().Err(err).Msg("server unreachable, trying offline login")
		user, verr := m.vault.ValidateOffline(ctx, email, password)
		if verr != nil {
			log.Warn().Err(verr).Msg("offline login refused")
			return LoginResult{}, verr
		}
		if err := m.setCurrent(ctx, user, ""); err != nil {
			return LoginResult{}, err
		}
		log.Info().Msg("offline login ok")
		return LoginResult{User: user, Offline: true}, nil
	default:
		log.Warn().Err(err).Msg("online login refused")
		return LoginResult{}, err
	}
}

func (m *Manager) online(ctx context.Context, log zerolog.Logger, res erp.LoginResult, password string) (LoginResult, error) {
	// bez zapisanego weryfikatora nie będzie loginu offline, ale sesja online działa
	if err := m.vault.RecordSuccessfulLogin(ctx, res.User, password); err != nil {
		log.Error().Err(err).Msg("could not record offline credential")
	}
	if err := m.setCurrent(ctx, res.User, res.Token); err != nil {
		return LoginResult{}, err
	}

	out := LoginResult{User: res.User}
	if m.prefetch != nil {
		r, err := m.prefetch.RunFullSync(ctx, userContext(res.User))
		if err != nil {
			log.Warn().Err(err).Msg("prefetch after login aborted")
		} else {
			out.Sync = &r
			log.Info().Bool("success", r.Success).Msg("prefetch after login done")
		}
	}
	return out, nil
}

func (m *Manager) setCurrent(ctx context.Context, user domain.UserProfile, token string) error {
	b, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := m.store.SetKV(ctx, kvUser, string(b)); err != nil {
		return err
	}
	if token != "" {
		if err := m.store.SetKV(ctx, kvToken, token); err != nil {
			return err
		}
	}
	m.notify(userContext(user))
	return nil
}

// Current zwraca zalogowanego użytkownika; ok=false gdy nikt nie jest zalogowany.
func (m *Manager) Current(ctx context.Context) (domain.UserProfile, bool, error) {
	v, err := m.store.GetKV(ctx, kvUser)
	if err != nil || v == "" {
		return domain.UserProfile{}, false, err
	}
	var u domain.UserProfile
	if err := json.Unmarshal([]byte(v), &u); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("%w: session user: %v", domain.ErrStorageUnavailable, err)
	}
	return u, true, nil
}

// Restore – po restarcie aplikacji: token do klienta, użytkownik do listenerów.
func (m *Manager) Restore(ctx context.Context) (domain.UserProfile, bool, error) {
	u, ok, err := m.Current(ctx)
	if err != nil || !ok {
		return u, ok, err
	}
	token, err := m.store.GetKV(ctx, kvToken)
	if err != nil {
		return u, ok, err
	}
	if token != "" {
		m.auth.SetToken(token)
	}
	m.notify(userContext(u))
	return u, true, nil
}

// Logout czyści sesję. Cache i weryfikator offline zostają, chyba że forget=true.
func (m *Manager) Logout(ctx context.Context, forget bool) error {
	u, ok, err := m.Current(ctx)
	if err != nil && !errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	if err := m.store.DeleteKV(ctx, kvUser); err != nil {
		return err
	}
	if err := m.store.DeleteKV(ctx, kvToken); err != nil {
		return err
	}
	m.auth.SetToken("")
	if forget && ok {
		if err := m.vault.Forget(ctx, u.Email); err != nil {
			return err
		}
	}
	m.notify(syncer.UserContext{})
	m.log.Info().Str("email", u.Email).Bool("forget", forget).Msg("logout")
	return nil
}
