package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler func(ctx context.Context, call int) ([]byte, error)

type fakeRemote struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]handler
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: map[string]int{}, handlers: map[string]handler{}}
}

func (f *fakeRemote) on(path string, h handler) { f.handlers[path] = h }

func (f *fakeRemote) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	f.calls[path]++
	n := f.calls[path]
	h := f.handlers[path]
	f.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("%w: no route %s", domain.ErrRemoteRejected, path)
	}
	return h(ctx, n)
}

func (f *fakeRemote) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func static(body string) handler {
	return func(context.Context, int) ([]byte, error) { return []byte(body), nil }
}

func networkDown(context.Context, int) ([]byte, error) {
	return nil, fmt.Errorf("%w: http 500", domain.ErrNetworkUnavailable)
}

func partnersJSON(n int) string {
	recs := make([]map[string]any, n)
	for i := range recs {
		recs[i] = map[string]any{"CODPARC": i + 1, "NOMEPARC": fmt.Sprintf("Parceiro %d", i+1), "ATIVO": "S"}
	}
	b, _ := json.Marshal(recs)
	return string(b)
}

func spec(t *testing.T, name string) collections.Spec {
	t.Helper()
	s, ok := collections.Get(name)
	require.True(t, ok, name)
	return s
}

func newTestEngine(t *testing.T, remote Fetcher, names ...string) (*Engine, *store.Store) {
	t.Helper()
	h, err := db.OpenAt(t.TempDir(), db.Options{})
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	st := store.New(zerolog.Nop(), h.DB)
	specs := make([]collections.Spec, 0, len(names))
	for _, n := range names {
		specs = append(specs, spec(t, n))
	}
	e := NewEngine(zerolog.Nop(), st, remote, specs, EngineOptions{FetchTimeout: time.Second})
	return e, st
}

func TestFullSyncExactSnapshot(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, func(_ context.Context, call int) ([]byte, error) {
		if call == 1 {
			return []byte(partnersJSON(5)), nil
		}
		return []byte(`{"data":` + partnersJSON(3) + `}`), nil
	})
	e, st := newTestEngine(t, remote, collections.Partners)
	ctx := context.Background()

	res, err := e.RunFullSync(ctx, UserContext{})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 5, res.Counts[collections.Partners])

	res, err = e.RunFullSync(ctx, UserContext{})
	require.NoError(t, err)
	require.True(t, res.Success)

	got, err := st.GetAll(ctx, collections.Partners)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

// 500 parceiros, produtos z błędem serwera
func TestPartialSyncKeepsPreviousData(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, static(partnersJSON(500)))
	remote.on(spec(t, collections.Products).Path, networkDown)
	e, st := newTestEngine(t, remote, collections.Partners, collections.Products)
	ctx := context.Background()

	prev := []store.Record{{Key: "10", Payload: json.RawMessage(`{"CODPROD":10,"DESCRPROD":"Café"}`)}}
	require.NoError(t, st.PutAll(ctx, collections.Products, prev, store.Replace))

	res, err := e.RunFullSync(ctx, UserContext{Email: "vendedor1@empresa.com"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 500, res.Counts[collections.Partners])
	assert.Contains(t, res.Errors, collections.Products)
	assert.Equal(t, []string{collections.Products}, res.Stale)
	assert.ErrorIs(t, res.Err(collections.Products), domain.ErrNetworkUnavailable)

	// jedna powtórka, nie więcej
	assert.Equal(t, 2, remote.Calls(spec(t, collections.Products).Path))

	partners, err := st.GetAll(ctx, collections.Partners)
	require.NoError(t, err)
	assert.Len(t, partners, 500)

	products, err := st.GetAll(ctx, collections.Products)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "10", products[0].Key)

	fr, err := st.Freshness(ctx, collections.Products)
	require.NoError(t, err)
	assert.True(t, fr.Stale)
	assert.NotEmpty(t, fr.LastError)
}

func TestPartialSyncFirstRunLeavesEmpty(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, static(partnersJSON(500)))
	remote.on(spec(t, collections.Products).Path, networkDown)
	e, st := newTestEngine(t, remote, collections.Partners, collections.Products)
	ctx := context.Background()

	_, err := e.RunFullSync(ctx, UserContext{})
	require.NoError(t, err)

	products, err := st.GetAll(ctx, collections.Products)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestRetryOnceThenCommit(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, func(_ context.Context, call int) ([]byte, error) {
		if call == 1 {
			return nil, fmt.Errorf("%w: reset", domain.ErrNetworkUnavailable)
		}
		return []byte(partnersJSON(2)), nil
	})
	e, _ := newTestEngine(t, remote, collections.Partners)

	res, err := e.RunFullSync(context.Background(), UserContext{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Counts[collections.Partners])
	assert.Equal(t, 2, remote.Calls(spec(t, collections.Partners).Path))
}

func TestSchemaMismatchNotRetried(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, static(partnersJSON(2)))
	remote.on(spec(t, collections.Products).Path, static(`[{"DESCRPROD":"sem código"}]`))
	e, st := newTestEngine(t, remote, collections.Partners, collections.Products)
	ctx := context.Background()

	res, err := e.RunFullSync(ctx, UserContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err(collections.Products), domain.ErrSchemaMismatch)
	assert.Equal(t, 1, remote.Calls(spec(t, collections.Products).Path))

	n, err := st.Count(ctx, collections.Partners)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestEmptyRequiredCollectionIsMismatch(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Products).Path, static(`[]`))
	remote.on(spec(t, collections.Volumes).Path, static(`[]`))
	e, _ := newTestEngine(t, remote, collections.Products, collections.Volumes)

	res, err := e.RunFullSync(context.Background(), UserContext{})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err(collections.Products), domain.ErrSchemaMismatch)
	// volumes mogą być puste
	assert.NoError(t, res.Err(collections.Volumes))
	assert.Equal(t, 0, res.Counts[collections.Volumes])
	assert.Contains(t, res.Counts, collections.Volumes)
}

func TestOptionalCollectionFailureKeepsSuccess(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, static(partnersJSON(1)))
	remote.on(spec(t, collections.Leads).Path, networkDown)
	e, _ := newTestEngine(t, remote, collections.Partners, collections.Leads)

	res, err := e.RunFullSync(context.Background(), UserContext{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{collections.Leads}, res.Stale)
}

func TestFetchTimeoutCommitsNothing(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, func(ctx context.Context, _ int) ([]byte, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", domain.ErrNetworkUnavailable, ctx.Err())
	})
	e, st := newTestEngine(t, remote, collections.Partners)
	e.fetchTimeout = 50 * time.Millisecond
	ctx := context.Background()

	res, err := e.RunFullSync(ctx, UserContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err(collections.Partners), context.DeadlineExceeded)

	n, err := st.Count(ctx, collections.Partners)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) handler(body string) handler {
	return func(ctx context.Context, _ int) ([]byte, error) {
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.release:
			return []byte(body), nil
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrNetworkUnavailable, ctx.Err())
		}
	}
}

func TestConcurrentSyncIsCoalesced(t *testing.T) {
	g := newGate()
	remote := newFakeRemote()
	path := spec(t, collections.Partners).Path
	remote.on(path, g.handler(partnersJSON(3)))
	e, _ := newTestEngine(t, remote, collections.Partners)
	ctx := context.Background()

	results := make([]SyncResult, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = e.RunFullSync(ctx, UserContext{})
	}()
	<-g.started
	assert.True(t, e.InProgress())

	_, err := e.TryRunFullSync(ctx, UserContext{})
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	joining := make(chan struct{})
	go func() {
		defer wg.Done()
		close(joining)
		results[1], _ = e.RunFullSync(ctx, UserContext{})
	}()
	<-joining
	time.Sleep(50 * time.Millisecond)
	close(g.release)
	wg.Wait()

	assert.Equal(t, 1, remote.Calls(path))
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.NotEqual(t, results[0].Coalesced, results[1].Coalesced)
	assert.Equal(t, results[0].Counts, results[1].Counts)

	// każdy wołający dostaje własne mapy
	results[1].Counts[collections.Partners] = 99
	assert.Equal(t, 3, results[0].Counts[collections.Partners])
	assert.Equal(t, 3, e.LastResult().Counts[collections.Partners])
}

func TestCallerCancelDoesNotAbortPass(t *testing.T) {
	g := newGate()
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, g.handler(partnersJSON(3)))
	e, st := newTestEngine(t, remote, collections.Partners)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.RunFullSync(ctx, UserContext{})
		errCh <- err
	}()
	<-g.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(g.release)
	require.Eventually(t, func() bool { return e.LastResult() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, e.LastResult().Counts[collections.Partners])

	n, err := st.Count(context.Background(), collections.Partners)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
