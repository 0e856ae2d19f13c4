// internal/collections/decode.go
package collections

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bartek5186/sfa-offline/internal/domain"
)

// Decoded – zwalidowany rekord gotowy do zapisu.
type Decoded struct {
	Key     string
	Payload json.RawMessage
}

// Decode rozpakowuje odpowiedź ERP (tablica albo obiekt z tablicą pod
// Envelope/"data"/jedynym polem-tablicą) i sprawdza każdy rekord.
// Każde odchylenie kończy się ErrSchemaMismatch, nic nie jest częściowo zwracane.
func (s Spec) Decode(body []byte) ([]Decoded, error) {
	items, err := s.unwrap(body)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 && !s.AllowEmpty {
		return nil, fmt.Errorf("%w: %s: empty collection", domain.ErrSchemaMismatch, s.Name)
	}

	out := make([]Decoded, 0, len(items))
	for i, raw := range items {
		key, err := s.KeyOfRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, Decoded{Key: key, Payload: raw})
	}
	return out, nil
}

func (s Spec) unwrap(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", domain.ErrSchemaMismatch, s.Name)
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrSchemaMismatch, s.Name, err)
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrSchemaMismatch, s.Name, err)
		}
		for _, k := range []string{s.Envelope, "data"} {
			if k == "" {
				continue
			}
			if raw, ok := obj[k]; ok {
				return s.unwrapArray(raw, k)
			}
		}
		// jedyne pole będące tablicą (np. {"parceiros":[...],"total":10})
		var found json.RawMessage
		n := 0
		for _, raw := range obj {
			if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '[' {
				found = t
				n++
			}
		}
		if n == 1 {
			return s.unwrapArray(found, "")
		}
		return nil, fmt.Errorf("%w: %s: no record array in response object", domain.ErrSchemaMismatch, s.Name)
	default:
		return nil, fmt.Errorf("%w: %s: response is neither array nor object", domain.ErrSchemaMismatch, s.Name)
	}
}

func (s Spec) unwrapArray(raw json.RawMessage, field string) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: field %q is not an array", domain.ErrSchemaMismatch, s.Name, field)
	}
	return items, nil
}
