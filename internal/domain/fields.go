// internal/domain/fields.go
package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Text to pole ERP, które przychodzi raz jako string, raz jako liczba
// (Sankhya nie jest konsekwentna: CODPROD bywa 123 albo "123").
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	// liczba / bool – bierzemy literał
	*t = Text(string(b))
	return nil
}

func (t Text) String() string { return string(t) }

func (t Text) Empty() bool { return strings.TrimSpace(string(t)) == "" }

// Int zwraca wartość liczbową pola (0 gdy puste/niecyfrowe).
func (t Text) Int() int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
	return v
}

// Decimal parsuje kwotę z ERP: "12,50", "12.50", " 1 234,5 ".
// ok=false gdy pole puste albo nieparsowalne.
func (t Text) Decimal() (decimal.Decimal, bool) {
	return ParseAmount(string(t))
}

// YN – flaga "S"/"N" (i warianty) jako bool.
func (t Text) YN() bool {
	return yn(string(t))
}

// ParseAmount zamienia tekstową kwotę na decimal.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, " ", "")
	// "1.234,56" -> "1234.56"; "12,5" -> "12.5"
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func yn(s string) bool {
	switch strings.TrimSpace(strings.ToUpper(s)) {
	case "S", "Y", "T", "1", "SIM", "TRUE":
		return true
	default:
		return false
	}
}
