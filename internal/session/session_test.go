package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/erp"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/bartek5186/sfa-offline/internal/syncer"
	"github.com/bartek5186/sfa-offline/internal/vault"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vendedor = domain.UserProfile{
	ID:          "42",
	Name:        "Vendedor Um",
	Email:       "vendedor1@empresa.com",
	Role:        "Vendedor",
	CodVendedor: "7",
}

type fakeAuth struct {
	mu       sync.Mutex
	down     bool
	password string
	token    string
}

func (a *fakeAuth) Login(ctx context.Context, email, password string) (erp.LoginResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return erp.LoginResult{}, fmt.Errorf("%w: dial tcp: connection refused", domain.ErrNetworkUnavailable)
	}
	if email != vendedor.Email || password != a.password {
		return erp.LoginResult{}, fmt.Errorf("%w: http 401", domain.ErrWrongPassword)
	}
	a.token = "tok-1"
	return erp.LoginResult{User: vendedor, Token: "tok-1"}, nil
}

func (a *fakeAuth) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *fakeAuth) setDown(v bool) {
	a.mu.Lock()
	a.down = v
	a.mu.Unlock()
}

type fakePrefetch struct {
	calls []syncer.UserContext
}

func (p *fakePrefetch) RunFullSync(ctx context.Context, uc syncer.UserContext) (syncer.SyncResult, error) {
	p.calls = append(p.calls, uc)
	return syncer.SyncResult{Success: true}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeAuth, *fakePrefetch) {
	t.Helper()
	h, err := db.OpenAt(t.TempDir(), db.Options{})
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	auth := &fakeAuth{password: "senha123"}
	pf := &fakePrefetch{}
	v := vault.New(zerolog.Nop(), h.DB, vault.Params{MemoryKB: 1024, Time: 1, Parallelism: 1})
	m := New(zerolog.Nop(), auth, v, store.New(zerolog.Nop(), h.DB), pf)
	return m, auth, pf
}

func TestOnlineThenOfflineLogin(t *testing.T) {
	m, auth, pf := newTestManager(t)
	ctx := context.Background()

	var seen []syncer.UserContext
	m.OnUserChange(func(uc syncer.UserContext) { seen = append(seen, uc) })

	res, err := m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)
	assert.False(t, res.Offline)
	assert.Equal(t, vendedor, res.User)
	require.NotNil(t, res.Sync)
	assert.True(t, res.Sync.Success)
	assert.Equal(t, []syncer.UserContext{{Email: vendedor.Email, CodVendedor: "7"}}, pf.calls)

	require.NoError(t, m.Logout(ctx, false))
	auth.setDown(true)

	res, err = m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, vendedor, res.User)
	assert.Nil(t, res.Sync)
	assert.Len(t, pf.calls, 1)

	cur, ok, err := m.Current(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, vendedor, cur)

	require.Len(t, seen, 3)
	assert.Equal(t, syncer.UserContext{}, seen[1])
}

func TestOfflineLoginWithoutPriorOnline(t *testing.T) {
	m, auth, _ := newTestManager(t)
	auth.setDown(true)

	_, err := m.Login(context.Background(), "vendedor1@empresa.com", "senha123")
	assert.ErrorIs(t, err, domain.ErrNoOfflineCredential)

	_, ok, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOfflineLoginWrongPassword(t *testing.T) {
	m, auth, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)

	auth.setDown(true)
	_, err = m.Login(ctx, "vendedor1@empresa.com", "errada")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
}

func TestOnlineRejectionDoesNotFallBackOffline(t *testing.T) {
	m, _, pf := newTestManager(t)
	ctx := context.Background()
	_, err := m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)

	// serwer mówi "złe hasło" – stary weryfikator nie może tego obejść
	_, err = m.Login(ctx, "vendedor1@empresa.com", "outra")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
	assert.Len(t, pf.calls, 1)
}

func TestLoginRequiresCredentials(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Login(context.Background(), " ", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = m.Login(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestRestoreAndForget(t *testing.T) {
	m, auth, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)

	auth.SetToken("")
	u, ok, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, vendedor.Email, u.Email)
	assert.Equal(t, "tok-1", auth.token)

	require.NoError(t, m.Logout(ctx, true))
	assert.Empty(t, auth.token)

	auth.setDown(true)
	_, err = m.Login(ctx, "vendedor1@empresa.com", "senha123")
	assert.ErrorIs(t, err, domain.ErrNoOfflineCredential)
}

func TestOfflineLoginAfterRestart(t *testing.T) {
	dir := t.TempDir()
	open := func(auth *fakeAuth) (*Manager, *db.Handle) {
		h, err := db.OpenAt(dir, db.Options{})
		require.NoError(t, err)
		require.NoError(t, h.Migrate())
		v := vault.New(zerolog.Nop(), h.DB, vault.Params{MemoryKB: 1024, Time: 1, Parallelism: 1})
		return New(zerolog.Nop(), auth, v, store.New(zerolog.Nop(), h.DB), &fakePrefetch{}), h
	}
	ctx := context.Background()

	m, h := open(&fakeAuth{password: "senha123"})
	_, err := m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// restart aplikacji bez sieci
	m, h = open(&fakeAuth{password: "senha123", down: true})
	defer h.Close()
	res, err := m.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, vendedor, res.User)
}
