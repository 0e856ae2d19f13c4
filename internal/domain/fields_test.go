package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextAcceptsNumbersAndStrings(t *testing.T) {
	var p Partner
	require.NoError(t, json.Unmarshal([]byte(`{"CODPARC":123,"NOMEPARC":"  Padaria ","CODVEND":null,"ATIVO":"S"}`), &p))
	assert.Equal(t, Text("123"), p.CODPARC)
	assert.Equal(t, "Padaria", p.NOMEPARC.String())
	assert.True(t, p.CODVEND.Empty())
	assert.Equal(t, int64(123), p.CODPARC.Int())
	assert.True(t, p.Active())
}

func TestParseAmount(t *testing.T) {
	for in, want := range map[string]string{
		"12,50":     "12.5",
		"12.50":     "12.5",
		" 1 234,5 ": "1234.5",
		"1.234,56":  "1234.56",
		"0":         "0",
	} {
		got, ok := ParseAmount(in)
		require.True(t, ok, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%q -> %s", in, got)
	}
	for _, in := range []string{"", "  ", "abc", "1,2,3"} {
		_, ok := ParseAmount(in)
		assert.False(t, ok, in)
	}
}

func TestYNAndActive(t *testing.T) {
	assert.True(t, Text("s").YN())
	assert.True(t, Text("SIM").YN())
	assert.False(t, Text("N").YN())
	assert.False(t, Product{ATIVO: "N"}.Active())
	assert.True(t, Product{}.Active())
	assert.Equal(t, "UN", Product{}.BaseUnit())
}

func TestVolumeFactorDefaultsToOne(t *testing.T) {
	assert.True(t, Volume{}.Factor().Equal(decimal.NewFromInt(1)))
	assert.True(t, Volume{QUANTIDADE: "0"}.Factor().Equal(decimal.NewFromInt(1)))
	assert.True(t, Volume{QUANTIDADE: "12"}.Factor().Equal(decimal.NewFromInt(12)))
}

func TestSpecificityAndLabel(t *testing.T) {
	assert.Equal(t, 0, PriceException{CODLOCAL: "0"}.Specificity())
	assert.Equal(t, 2, PriceException{CODLOCAL: "101", CONTROLE: "L1"}.Specificity())
	assert.Equal(t, "Tabela 5", PriceTable{NUTAB: "5"}.Label())
	assert.Equal(t, "VAR", PriceTable{NUTAB: "5", CODTAB: "VAR"}.Label())
}

func TestLeadClosed(t *testing.T) {
	assert.True(t, Lead{STATUS_LEAD: "GANHO"}.Closed())
	assert.False(t, Lead{STATUS_LEAD: "EM_ANDAMENTO"}.Closed())
}

func TestUserMessageFollowsWrapping(t *testing.T) {
	err := fmt.Errorf("login: %w", ErrNoOfflineCredential)
	assert.Contains(t, UserMessage(err), "pelo menos uma vez")
	assert.True(t, Transient(fmt.Errorf("x: %w", ErrNetworkUnavailable)))
	assert.False(t, Transient(ErrRemoteRejected))
	assert.Empty(t, UserMessage(nil))
}
