package outbox

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DrainResult – podsumowanie jednego opróżniania kolejki.
type DrainResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`   // przeszły w stan failed w tym przebiegu
	Retrying  int `json:"retrying"` // nieudana próba, zostają pending
	Blocked   int `json:"blocked"`  // czekają za wpisem failed tej samej encji
}

type group struct {
	collection string
	key        string
	rows       []db.QueuedWrite
}

// Drain dostarcza wpisy pending: FIFO w obrębie encji, encje równolegle.
// Pierwsza nieudana próba zatrzymuje resztę wpisów tej encji do następnego razu.
// Naraz działa tylko jeden Drain; kolejne wywołanie dostaje ErrSyncInProgress.
func (o *Outbox) Drain(ctx context.Context) (DrainResult, error) {
	if !o.drainMu.TryLock() {
		return DrainResult{}, domain.ErrSyncInProgress
	}
	defer o.drainMu.Unlock()

	groups, blocked, err := o.loadGroups(ctx)
	if err != nil {
		return DrainResult{}, err
	}
	res := DrainResult{Blocked: blocked}
	if len(groups) == 0 {
		return res, nil
	}
	o.log.Info().Int("entities", len(groups)).Msg("drain start")

	// bez WithContext: błąd bazy w jednej encji nie przerywa dostaw pozostałych
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.parallelism)
	for _, grp := range groups {
		g.Go(func() error {
			r, err := o.drainGroup(ctx, grp)
			mu.Lock()
			res.Delivered += r.Delivered
			res.Failed += r.Failed
			res.Retrying += r.Retrying
			res.Blocked += r.Blocked
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()
	o.refreshPending(ctx)

	o.log.Info().
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Int("retrying", res.Retrying).
		Int("blocked", res.Blocked).
		Msg("drain done")
	return res, err
}

// loadGroups – pending pogrupowane po encji w kolejności seq; encje z wpisem
// failed są pomijane (liczone jako blocked).
func (o *Outbox) loadGroups(ctx context.Context) ([]*group, int, error) {
	var rows []db.QueuedWrite
	if err := o.db.WithContext(ctx).
		Where("state IN ?", []string{string(domain.WritePending), string(domain.WriteFailed)}).
		Order("seq").Find(&rows).Error; err != nil {
		return nil, 0, storageErr("load", err)
	}

	failed := map[string]bool{}
	for _, r := range rows {
		if r.State == string(domain.WriteFailed) {
			failed[lockKey(r.Collection, r.EntityKey)] = true
		}
	}

	var (
		order   []*group
		byKey   = map[string]*group{}
		blocked int
	)
	for _, r := range rows {
		if r.State != string(domain.WritePending) {
			continue
		}
		k := lockKey(r.Collection, r.EntityKey)
		if failed[k] {
			blocked++
			continue
		}
		grp, ok := byKey[k]
		if !ok {
			grp = &group{collection: r.Collection, key: r.EntityKey}
			byKey[k] = grp
			order = append(order, grp)
		}
		grp.rows = append(grp.rows, r)
	}
	return order, blocked, nil
}

func (o *Outbox) drainGroup(ctx context.Context, grp *group) (DrainResult, error) {
	unlock := o.keys.lock(lockKey(grp.collection, grp.key))
	defer unlock()

	var res DrainResult
	for i, row := range grp.rows {
		if ctx.Err() != nil {
			return res, nil
		}
		out, err := o.deliverOne(ctx, row)
		if err != nil {
			return res, err // błąd bazy – przerywamy cały drain
		}
		switch out {
		case outcomeDelivered:
			res.Delivered++
			continue
		case outcomeFailed:
			res.Failed++
		case outcomeRetry:
			res.Retrying++
		}
		res.Blocked += len(grp.rows) - i - 1
		return res, nil
	}
	return res, nil
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeRetry
	outcomeFailed
)

func (o *Outbox) deliverOne(ctx context.Context, row db.QueuedWrite) (outcome, error) {
	log := o.log.With().Str("queue_id", row.ID).Str("collection", row.Collection).Str("key", row.EntityKey).Logger()

	spec, ok := collections.Get(row.Collection)
	kind := domain.OpKind(row.Kind)
	path, okPath := spec.WritePath(kind)
	if !ok || !okPath {
		log.Error().Str("kind", row.Kind).Msg("queued write has no endpoint, marking failed")
		return outcomeFailed, o.markFailed(ctx, row, row.Attempts, "no endpoint for "+row.Kind)
	}

	attempts := row.Attempts + 1
	o.metrics.IncAttempt(row.Collection)
	echo, err := o.remote.Deliver(ctx, path, row.ID, json.RawMessage(row.Payload))
	if err == nil {
		if err := o.db.WithContext(ctx).Where("seq = ?", row.Seq).Delete(&db.QueuedWrite{}).Error; err != nil {
			return outcomeDelivered, storageErr("delete delivered", err)
		}
		o.metrics.IncDelivered(row.Collection, "drain")
		o.applyToCache(ctx, spec, kind, row.EntityKey, json.RawMessage(row.Payload), echo)
		log.Info().Int("attempts", attempts).Msg("queued write delivered")
		return outcomeDelivered, nil
	}

	if ctx.Err() != nil {
		// przerwane przez wołającego, to nie jest nieudana próba
		log.Info().Err(err).Msg("drain cancelled, write stays pending")
		return outcomeRetry, nil
	}
	if !domain.Transient(err) {
		log.Warn().Err(err).Msg("queued write rejected by server")
		return outcomeFailed, o.markFailed(ctx, row, attempts, err.Error())
	}
	if attempts >= o.maxAttempts {
		log.Warn().Err(err).Int("attempts", attempts).Msg("queued write failed, giving up")
		return outcomeFailed, o.markFailed(ctx, row, attempts, err.Error())
	}

	log.Info().Err(err).Int("attempts", attempts).Msg("queued write attempt failed")
	if uerr := o.db.WithContext(ctx).Model(&db.QueuedWrite{}).Where("seq = ?", row.Seq).
		Updates(map[string]any{"attempts": attempts, "last_error": err.Error()}).Error; uerr != nil {
		return outcomeRetry, storageErr("update attempts", uerr)
	}
	return outcomeRetry, nil
}

func (o *Outbox) markFailed(ctx context.Context, row db.QueuedWrite, attempts int, msg string) error {
	o.metrics.IncFailed(row.Collection)
	if err := o.db.WithContext(ctx).Model(&db.QueuedWrite{}).Where("seq = ?", row.Seq).
		Updates(map[string]any{"state": string(domain.WriteFailed), "attempts": attempts, "last_error": msg}).Error; err != nil {
		return storageErr("mark failed", err)
	}
	return nil
}
