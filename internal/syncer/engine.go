// internal/syncer/engine.go
package syncer

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/metrics"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultPassTimeout  = 2 * time.Minute
)

// Fetcher – źródło snapshotów kolekcji (erp.Client).
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// UserContext – kto zlecił synchronizację (do logów).
type UserContext struct {
	Email       string
	CodVendedor string
}

// SyncResult – wynik jednego pełnego przebiegu.
type SyncResult struct {
	Success    bool              `json:"success"`
	Counts     map[string]int    `json:"counts"`
	Errors     map[string]string `json:"errors,omitempty"`
	Stale      []string          `json:"stale,omitempty"`
	Coalesced  bool              `json:"coalesced"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`

	errs map[string]error
}

// clone – osobne mapy dla każdego wołającego.
func (r SyncResult) clone() SyncResult {
	r.Counts = maps.Clone(r.Counts)
	r.Errors = maps.Clone(r.Errors)
	r.errs = maps.Clone(r.errs)
	r.Stale = slices.Clone(r.Stale)
	return r
}

// Err zwraca błąd danej kolekcji (nil gdy zapisana).
func (r SyncResult) Err(collection string) error {
	return r.errs[collection]
}

type EngineOptions struct {
	FetchTimeout time.Duration // na pojedynczy GET, domyślnie 15s
	PassTimeout  time.Duration // cały przebieg
	Metrics      *metrics.Metrics
}

type Engine struct {
	log     zerolog.Logger
	store   *store.Store
	remote  Fetcher
	specs   []collections.Spec
	metrics *metrics.Metrics

	fetchTimeout time.Duration
	passTimeout  time.Duration

	group   singleflight.Group
	running atomic.Bool

	mu   sync.Mutex
	last *SyncResult
}

func NewEngine(log zerolog.Logger, st *store.Store, remote Fetcher, specs []collections.Spec, opts EngineOptions) *Engine {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = defaultPassTimeout
	}
	return &Engine{
		log:          log.With().Str("component", "sync").Logger(),
		store:        st,
		remote:       remote,
		specs:        specs,
		metrics:      opts.Metrics,
		fetchTimeout: opts.FetchTimeout,
		passTimeout:  opts.PassTimeout,
	}
}

// InProgress – czy przebieg trwa.
func (e *Engine) InProgress() bool { return e.running.Load() }

// LastResult – ostatni zakończony przebieg (nil przed pierwszym).
func (e *Engine) LastResult() *SyncResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	r := e.last.clone()
	return &r
}

// RunFullSync pobiera wszystkie kolekcje i zapisuje te, które przeszły walidację.
// Równoległe wywołania dostają wynik trwającego przebiegu (Coalesced=true).
// Anulowanie ctx przez wołającego nie przerywa przebiegu, ogranicza go tylko PassTimeout.
func (e *Engine) RunFullSync(ctx context.Context, uc UserContext) (SyncResult, error) {
	var leader bool
	ch := e.group.DoChan("full-sync", func() (any, error) {
		leader = true
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.passTimeout)
		defer cancel()
		return e.run(pctx, uc), nil
	})

	select {
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	case res := <-ch:
		out := res.Val.(SyncResult).clone()
		if !leader {
			out.Coalesced = true
			e.metrics.IncCoalesced()
		}
		return out, nil
	}
}

// TryRunFullSync – jak RunFullSync, ale nie dołącza do trwającego przebiegu.
func (e *Engine) TryRunFullSync(ctx context.Context, uc UserContext) (SyncResult, error) {
	if e.InProgress() {
		return SyncResult{}, domain.ErrSyncInProgress
	}
	return e.RunFullSync(ctx, uc)
}

type fetched struct {
	records []store.Record
	err     error
}

func (e *Engine) run(ctx context.Context, uc UserContext) SyncResult {
	e.running.Store(true)
	defer e.running.Store(false)

	res := SyncResult{
		Counts:    map[string]int{},
		Errors:    map[string]string{},
		StartedAt: time.Now(),
		errs:      map[string]error{},
	}
	e.log.Info().Str("user", uc.Email).Int("collections", len(e.specs)).Msg("full sync start")

	out := make([]fetched, len(e.specs))
	var g errgroup.Group
	for i, spec := range e.specs {
		g.Go(func() error {
			out[i] = e.fetchOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	// zapis dopiero po zebraniu wszystkich odpowiedzi, kolekcja po kolekcji
	res.Success = true
	for i, spec := range e.specs {
		f := out[i]
		err := f.err
		if err == nil {
			err = e.store.PutAll(ctx, spec.Name, f.records, store.Replace)
		}
		if err != nil {
			e.fail(ctx, &res, spec, err)
			continue
		}
		res.Counts[spec.Name] = len(f.records)
		e.metrics.SetCollectionRecords(spec.Name, len(f.records))
		e.log.Debug().Str("collection", spec.Name).Int("records", len(f.records)).Msg("collection committed")
	}

	res.FinishedAt = time.Now()
	took := res.FinishedAt.Sub(res.StartedAt)
	result := "success"
	switch {
	case len(res.Counts) == 0:
		result = "failed"
	case len(res.Errors) > 0:
		result = "partial"
	}
	e.metrics.ObserveSync(result, took)

	ev := e.log.Info()
	if !res.Success {
		ev = e.log.Warn()
	}
	ev.Str("result", result).
		Int("committed", len(res.Counts)).
		Strs("stale", res.Stale).
		Dur("took", took).
		Msg("full sync done")

	e.mu.Lock()
	last := res
	e.last = &last
	e.mu.Unlock()
	return res
}

func (e *Engine) fail(ctx context.Context, res *SyncResult, spec collections.Spec, err error) {
	res.errs[spec.Name] = err
	res.Errors[spec.Name] = err.Error()
	res.Stale = append(res.Stale, spec.Name)
	if spec.Required {
		res.Success = false
	}
	e.metrics.IncCollectionError(spec.Name, reason(err))
	e.log.Warn().Err(err).Str("collection", spec.Name).Bool("required", spec.Required).Msg("collection kept stale")

	// stan świeżości zapisujemy nawet gdy przebieg przekroczył czas
	if serr := e.store.MarkStale(context.WithoutCancel(ctx), spec.Name, err); serr != nil {
		e.log.Error().Err(serr).Str("collection", spec.Name).Msg("mark stale failed")
	}
}

// fetchOne – GET + walidacja. Jedna powtórka przy braku sieci, bez backoffu.
func (e *Engine) fetchOne(ctx context.Context, spec collections.Spec) fetched {
	var (
		body []byte
		err  error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		body, err = e.fetchWithTimeout(ctx, spec)
		if err == nil || !domain.Transient(err) || ctx.Err() != nil {
			break
		}
		e.log.Debug().Err(err).Str("collection", spec.Name).Msg("fetch retry")
	}
	if err != nil {
		return fetched{err: err}
	}

	decoded, err := spec.Decode(body)
	if err != nil {
		return fetched{err: err}
	}
	recs := make([]store.Record, len(decoded))
	for i, d := range decoded {
		recs[i] = store.Record{Key: d.Key, Payload: d.Payload}
	}
	return fetched{records: recs}
}

func (e *Engine) fetchWithTimeout(ctx context.Context, spec collections.Spec) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	start := time.Now()
	body, err := e.remote.Fetch(fctx, spec.Path)
	e.metrics.ObserveFetch(spec.Name, time.Since(start))
	return body, err
}

func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNetworkUnavailable):
		return "network"
	case errors.Is(err, domain.ErrSchemaMismatch):
		return "schema"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "storage"
	case errors.Is(err, domain.ErrRemoteRejected):
		return "rejected"
	default:
		return "other"
	}
}
