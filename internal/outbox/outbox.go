// Package outbox to kolejka zapisów do ERP: dostarczenie od razu gdy się da,
// w przeciwnym razie wpis czeka na powrót sieci. Kolejność per encja jest
// zachowana, różne encje idą równolegle.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/metrics"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts = 3
	defaultParallelism = 4
)

// Deliverer – wysyłka zapisu do serwera (erp.Client).
type Deliverer interface {
	Deliver(ctx context.Context, path, idempotencyKey string, payload any) (json.RawMessage, error)
}

// Connectivity – aktualny stan sieci (syncer.Monitor).
type Connectivity interface {
	Online() bool
}

type Options struct {
	MaxAttempts int
	Parallelism int
	Metrics     *metrics.Metrics
}

type Outbox struct {
	log     zerolog.Logger
	db      *gorm.DB
	store   *store.Store
	remote  Deliverer
	conn    Connectivity
	metrics *metrics.Metrics

	maxAttempts int
	parallelism int

	keys    *keyLocks
	drainMu sync.Mutex
}

func New(log zerolog.Logger, gdb *gorm.DB, st *store.Store, remote Deliverer, conn Connectivity, opts Options) *Outbox {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	return &Outbox{
		log:         log.With().Str("component", "outbox").Logger(),
		db:          gdb,
		store:       st,
		remote:      remote,
		conn:        conn,
		metrics:     opts.Metrics,
		maxAttempts: opts.MaxAttempts,
		parallelism: opts.Parallelism,
		keys:        newKeyLocks(),
	}
}

// SubmitResult – QueueID jest zawsze ustawiony (to też klucz idempotencji).
type SubmitResult struct {
	DeliveredImmediately bool            `json:"deliveredImmediately"`
	QueueID              string          `json:"queueId"`
	Record               json.RawMessage `json:"record,omitempty"`
}

// Entry – wpis kolejki widziany przez UI.
type Entry struct {
	ID         string          `json:"id"`
	Seq        uint            `json:"seq"`
	Kind       domain.OpKind   `json:"kind"`
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	State      string          `json:"state"`
	LastError  string          `json:"lastError,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: outbox %s: %v", domain.ErrStorageUnavailable, op, err)
}

func lockKey(collection, key string) string { return collection + "/" + key }

// Submit próbuje dostarczyć zapis od razu. Offline, brak sieci albo wcześniejsze
// wpisy tej samej encji w kolejce -> wpis trafia do kolejki jako pending.
// Odrzucenie przez serwer (4xx) wraca do wołającego, nic nie jest kolejkowane.
func (o *Outbox) Submit(ctx context.Context, op domain.Operation) (SubmitResult, error) {
	spec, path, err := validate(op)
	if err != nil {
		return SubmitResult{}, err
	}
	id := uuid.NewString()
	if op.Key == "" {
		// nowy rekord bez klucza: osobna "encja", nic nie blokuje
		op.Key = "new:" + id
	}
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: payload: %v", domain.ErrInvalidOperation, err)
	}

	unlock := o.keys.lock(lockKey(op.Collection, op.Key))
	defer unlock()

	log := o.log.With().Str("queue_id", id).Str("collection", op.Collection).Str("key", op.Key).Str("kind", string(op.Kind)).Logger()

	if !o.conn.Online() {
		log.Info().Msg("offline, write queued")
		return o.enqueue(ctx, id, op, payload, 0, "")
	}
	open, err := o.hasOpen(ctx, op.Collection, op.Key)
	if err != nil {
		return SubmitResult{}, err
	}
	if open {
		log.Info().Msg("earlier writes pending for entity, write queued")
		return o.enqueue(ctx, id, op, payload, 0, "")
	}

	o.metrics.IncAttempt(op.Collection)
	echo, err := o.remote.Deliver(ctx, path, id, json.RawMessage(payload))
	switch {
	case err == nil:
		o.metrics.IncDelivered(op.Collection, "immediate")
		rec := o.applyToCache(ctx, spec, op.Kind, op.Key, payload, echo)
		log.Info().Msg("write delivered")
		return SubmitResult{DeliveredImmediately: true, QueueID: id, Record: rec}, nil
	case domain.Transient(err):
		// próba natychmiastowa liczy się do limitu
		log.Warn().Err(err).Msg("delivery failed, write queued")
		return o.enqueue(ctx, id, op, payload, 1, err.Error())
	default:
		log.Warn().Err(err).Msg("write rejected by server")
		return SubmitResult{}, err
	}
}

func validate(op domain.Operation) (collections.Spec, string, error) {
	if !op.Kind.Valid() {
		return collections.Spec{}, "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidOperation, op.Kind)
	}
	spec, ok := collections.Get(op.Collection)
	if !ok {
		return collections.Spec{}, "", fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidOperation, op.Collection)
	}
	path, ok := spec.WritePath(op.Kind)
	if !ok {
		return collections.Spec{}, "", fmt.Errorf("%w: %s does not accept %s", domain.ErrInvalidOperation, op.Collection, op.Kind)
	}
	if op.Key == "" && op.Kind != domain.OpCreate {
		return collections.Spec{}, "", fmt.Errorf("%w: %s requires entity key", domain.ErrInvalidOperation, op.Kind)
	}
	if op.Payload == nil {
		return collections.Spec{}, "", fmt.Errorf("%w: empty payload", domain.ErrInvalidOperation)
	}
	return spec, path, nil
}

func (o *Outbox) enqueue(ctx context.Context, id string, op domain.Operation, payload []byte, attempts int, lastErr string) (SubmitResult, error) {
	state := domain.WritePending
	if attempts >= o.maxAttempts {
		state = domain.WriteFailed
	}
	row := db.QueuedWrite{
		ID:         id,
		Kind:       string(op.Kind),
		Collection: op.Collection,
		EntityKey:  op.Key,
		Payload:    datatypes.JSON(payload),
		State:      string(state),
		Attempts:   attempts,
		LastError:  lastErr,
	}
	if err := o.db.WithContext(ctx).Create(&row).Error; err != nil {
		return SubmitResult{}, storageErr("enqueue", err)
	}
	o.metrics.IncQueued(op.Collection)
	o.refreshPending(ctx)
	return SubmitResult{DeliveredImmediately: false, QueueID: id}, nil
}

// hasOpen – czy encja ma w kolejce coś niedostarczonego (pending albo failed).
func (o *Outbox) hasOpen(ctx context.Context, collection, key string) (bool, error) {
	var n int64
	err := o.db.WithContext(ctx).Model(&db.QueuedWrite{}).
		Where("collection = ? AND entity_key = ? AND state IN ?", collection, key,
			[]string{string(domain.WritePending), string(domain.WriteFailed)}).
		Count(&n).Error
	if err != nil {
		return false, storageErr("lookup", err)
	}
	return n > 0, nil
}

// Retry – ręczne ponowienie wpisu failed: wraca do pending z licznikiem od zera.
func (o *Outbox) Retry(ctx context.Context, id string) error {
	res := o.db.WithContext(ctx).Model(&db.QueuedWrite{}).
		Where("id = ? AND state = ?", id, string(domain.WriteFailed)).
		Updates(map[string]any{"state": string(domain.WritePending), "attempts": 0, "last_error": ""})
	if res.Error != nil {
		return storageErr("retry", res.Error)
	}
	if res.RowsAffected == 0 {
		return o.missingOrWrongState(ctx, id, "retry")
	}
	o.log.Info().Str("queue_id", id).Msg("failed write re-queued by user")
	o.refreshPending(ctx)
	return nil
}

// Discard – świadome porzucenie wpisu przez użytkownika.
func (o *Outbox) Discard(ctx context.Context, id string) error {
	res := o.db.WithContext(ctx).Where("id = ?", id).Delete(&db.QueuedWrite{})
	if res.Error != nil {
		return storageErr("discard", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: queued write %s", domain.ErrNotFound, id)
	}
	o.log.Warn().Str("queue_id", id).Msg("queued write discarded by user")
	o.refreshPending(ctx)
	return nil
}

func (o *Outbox) missingOrWrongState(ctx context.Context, id, op string) error {
	var row db.QueuedWrite
	err := o.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: queued write %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return storageErr(op, err)
	}
	return fmt.Errorf("%w: cannot %s write in state %s", domain.ErrInvalidOperation, op, row.State)
}

func (o *Outbox) Failed(ctx context.Context) ([]Entry, error) {
	return o.list(ctx, domain.WriteFailed)
}

func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	return o.list(ctx, domain.WritePending)
}

func (o *Outbox) list(ctx context.Context, state domain.WriteState) ([]Entry, error) {
	var rows []db.QueuedWrite
	if err := o.db.WithContext(ctx).Where("state = ?", string(state)).Order("seq").Find(&rows).Error; err != nil {
		return nil, storageErr("list", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, toEntry(r))
	}
	return out, nil
}

type Stats struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	type row struct {
		State string
		N     int64
	}
	var rows []row
	if err := o.db.WithContext(ctx).Model(&db.QueuedWrite{}).
		Select("state, count(*) as n").Group("state").Scan(&rows).Error; err != nil {
		return Stats{}, storageErr("stats", err)
	}
	var s Stats
	for _, r := range rows {
		switch domain.WriteState(r.State) {
		case domain.WritePending:
			s.Pending = r.N
		case domain.WriteFailed:
			s.Failed = r.N
		}
	}
	return s, nil
}

func (o *Outbox) refreshPending(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	if s, err := o.Stats(ctx); err == nil {
		o.metrics.SetPending(s.Pending)
	}
}

func toEntry(r db.QueuedWrite) Entry {
	return Entry{
		ID:         r.ID,
		Seq:        r.Seq,
		Kind:       domain.OpKind(r.Kind),
		Collection: r.Collection,
		Key:        r.EntityKey,
		Payload:    json.RawMessage(r.Payload),
		Attempts:   r.Attempts,
		State:      r.State,
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
	}
}
