// internal/collections/types.go
package collections

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bartek5186/sfa-offline/internal/domain"
)

// Spec opisuje jedną kolekcję cache: skąd ją pobrać, po czym ją kluczować
// i gdzie wysyłać zapisy.
type Spec struct {
	Name       string
	Path       string   // GET – pełny snapshot kolekcji
	KeyFields  []string // wymagane części klucza
	Qualifiers []string // opcjonalne części klucza (puste = "")
	Envelope   string   // klucz tablicy w odpowiedzi-obiekcie (domyślnie "data")
	AllowEmpty bool     // pusta lista z serwera jest poprawna
	Required   bool     // wchodzi do SyncResult.Success
	WritePaths map[domain.OpKind]string
}

const keySep = "|"

// KeyOf buduje klucz rekordu z pól ERP. Brak wymaganego pola = ErrSchemaMismatch.
func (s Spec) KeyOf(fields map[string]json.RawMessage) (string, error) {
	parts := make([]string, 0, len(s.KeyFields)+len(s.Qualifiers))
	for _, f := range s.KeyFields {
		v := scalar(fields[f])
		if v == "" {
			return "", fmt.Errorf("%w: %s: missing key field %s", domain.ErrSchemaMismatch, s.Name, f)
		}
		parts = append(parts, v)
	}
	for _, f := range s.Qualifiers {
		parts = append(parts, scalar(fields[f]))
	}
	return strings.Join(parts, keySep), nil
}

// KeyOfRecord – jak KeyOf, ale z surowego JSON obiektu.
func (s Spec) KeyOfRecord(raw json.RawMessage) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return "", fmt.Errorf("%w: %s: record is not an object", domain.ErrSchemaMismatch, s.Name)
	}
	return s.KeyOf(fields)
}

// Key składa klucz z gotowych wartości (np. z parametrów zapytania).
func Key(parts ...string) string {
	return strings.Join(parts, keySep)
}

// KeyPrefix – prefiks pasujący do wszystkich rekordów z danym początkiem klucza.
func KeyPrefix(parts ...string) string {
	return strings.Join(parts, keySep) + keySep
}

// WritePath zwraca endpoint dla danego rodzaju zapisu.
func (s Spec) WritePath(kind domain.OpKind) (string, bool) {
	p, ok := s.WritePaths[kind]
	return p, ok && p != ""
}

func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	var t domain.Text
	if err := json.Unmarshal(raw, &t); err != nil {
		return ""
	}
	return strings.TrimSpace(t.String())
}
