package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/store"
)

// applyToCache odbija potwierdzony zapis w lokalnym cache (Merge), żeby odczyty
// widziały zmianę przed następnym pełnym syncem. Błędy tylko logujemy – zapis
// na serwerze już się udał, a sync i tak nadpisze kolekcję.
// Zwraca rekord zapisany w cache (nil gdy nic nie zapisano).
func (o *Outbox) applyToCache(ctx context.Context, spec collections.Spec, kind domain.OpKind, key string, payload, echo json.RawMessage) json.RawMessage {
	rec, recKey, err := o.cacheRecord(ctx, spec, kind, key, payload, echo)
	if err != nil {
		o.log.Debug().Err(err).Str("collection", spec.Name).Str("key", key).Msg("cache not patched")
		return nil
	}
	if err := o.store.PutAll(ctx, spec.Name, []store.Record{{Key: recKey, Payload: rec}}, store.Merge); err != nil {
		o.log.Warn().Err(err).Str("collection", spec.Name).Str("key", recKey).Msg("cache patch failed")
		return nil
	}
	return rec
}

func (o *Outbox) cacheRecord(ctx context.Context, spec collections.Spec, kind domain.OpKind, key string, payload, echo json.RawMessage) (json.RawMessage, string, error) {
	// rekord odesłany przez serwer ma pierwszeństwo
	if len(bytes.TrimSpace(echo)) > 0 {
		if k, err := spec.KeyOfRecord(echo); err == nil {
			return echo, k, nil
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, "", err
	}

	// łatka na istniejący rekord (update, zmiana statusu, dezaktywacja)
	if kind != domain.OpCreate {
		cur, err := o.store.Get(ctx, spec.Name, key)
		switch {
		case err == nil:
			var base map[string]json.RawMessage
			if err := json.Unmarshal(cur.Payload, &base); err != nil {
				return nil, "", err
			}
			for k, v := range fields {
				base[k] = v
			}
			fields = base
		case !errors.Is(err, domain.ErrNotFound):
			return nil, "", err
		}
	}
	if kind == domain.OpDeactivate {
		fields["ATIVO"] = json.RawMessage(`"N"`)
	}

	k, err := spec.KeyOf(fields)
	if err != nil {
		// create bez klucza od serwera – rekord pojawi się po następnym syncu
		return nil, "", err
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, "", err
	}
	return out, k, nil
}
