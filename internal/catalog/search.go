package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold – małe litery bez znaków diakrytycznych ("São João" -> "sao joao").
// transform.Chain trzyma stan, więc budujemy go per wywołanie.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// matcher – zapytanie przygotowane raz dla całej listy.
type matcher struct {
	term   string
	digits string
}

func newMatcher(q string) matcher {
	return matcher{term: Fold(q), digits: onlyDigits(q)}
}

func (m matcher) empty() bool { return m.term == "" }

// text: dowolne z pól zawiera frazę
func (m matcher) text(fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(Fold(f), m.term) {
			return true
		}
	}
	return false
}

// doc: CNPJ/CPF porównujemy po samych cyfrach
func (m matcher) doc(v string) bool {
	return m.digits != "" && strings.Contains(onlyDigits(v), m.digits)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
