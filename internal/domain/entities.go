// internal/domain/entities.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Partner – parceiro (klient) z TGFPAR.
type Partner struct {
	CODPARC     Text `json:"CODPARC"`
	NOMEPARC    Text `json:"NOMEPARC"`
	RAZAOSOCIAL Text `json:"RAZAOSOCIAL"`
	CGC_CPF     Text `json:"CGC_CPF"`
	TIPPESSOA   Text `json:"TIPPESSOA"` // F / J
	ATIVO       Text `json:"ATIVO"`
	CODVEND     Text `json:"CODVEND"`
	CODCID      Text `json:"CODCID"`
	CLIENTE     Text `json:"CLIENTE"`
}

func (p Partner) Active() bool { return p.ATIVO.Empty() || p.ATIVO.YN() }

// Product – produkt z TGFPRO. Preco liczone w warstwie zapytań.
type Product struct {
	CODPROD      Text `json:"CODPROD"`
	DESCRPROD    Text `json:"DESCRPROD"`
	MARCA        Text `json:"MARCA"`
	CODGRUPOPROD Text `json:"CODGRUPOPROD"`
	REFERENCIA   Text `json:"REFERENCIA"`
	AD_VLRUNIT   Text `json:"AD_VLRUNIT"`
	ATIVO        Text `json:"ATIVO"`
	CODVOL       Text `json:"CODVOL"`

	Preco decimal.Decimal `json:"preco"`
}

func (p Product) Active() bool { return p.ATIVO.Empty() || p.ATIVO.YN() }

// BaseUnit – jednostka domyślna ("UN" gdy ERP nic nie podał).
func (p Product) BaseUnit() string {
	if p.CODVOL.Empty() {
		return "UN"
	}
	return p.CODVOL.String()
}

// PriceTable – konfiguracja tabeli cen (TGFTAB).
type PriceTable struct {
	NUTAB     Text `json:"NUTAB"`
	CODTAB    Text `json:"CODTAB"`
	DESCRICAO Text `json:"DESCRICAO"`
	DTVIGOR   Text `json:"DTVIGOR"`
}

// Label – to, co UI pokazuje jako nazwę tabeli.
func (t PriceTable) Label() string {
	switch {
	case !t.DESCRICAO.Empty():
		return t.DESCRICAO.String()
	case !t.CODTAB.Empty():
		return t.CODTAB.String()
	default:
		return "Tabela " + t.NUTAB.String()
	}
}

// PriceException – cena produktu w konkretnej tabeli (TGFEXC).
type PriceException struct {
	CODPROD  Text `json:"CODPROD"`
	NUTAB    Text `json:"NUTAB"`
	CODLOCAL Text `json:"CODLOCAL"`
	CONTROLE Text `json:"CONTROLE"`
	VLRVENDA Text `json:"VLRVENDA"`
	DTVIGOR  Text `json:"DTVIGOR"`
}

// Specificity – ile kwalifikatorów ustawionych (0 = wyjątek ogólny).
func (e PriceException) Specificity() int {
	n := 0
	if !e.CODLOCAL.Empty() && e.CODLOCAL != "0" {
		n++
	}
	if !e.CONTROLE.Empty() {
		n++
	}
	return n
}

// Volume – jednostka alternatywna produktu (TGFVOA).
type Volume struct {
	CODPROD    Text `json:"CODPROD"`
	CODVOL     Text `json:"CODVOL"`
	DESCRDANFE Text `json:"DESCRDANFE"`
	QUANTIDADE Text `json:"QUANTIDADE"`
	ATIVO      Text `json:"ATIVO"`
}

func (v Volume) Active() bool { return v.ATIVO.Empty() || v.ATIVO.YN() }

// Factor – współczynnik przeliczenia; brak/0 traktujemy jak 1.
func (v Volume) Factor() decimal.Decimal {
	f, ok := v.QUANTIDADE.Decimal()
	if !ok || !f.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return f
}

type OperationType struct {
	CODTIPOPER Text `json:"CODTIPOPER"`
	DESCROPER  Text `json:"DESCROPER"`
	TIPMOV     Text `json:"TIPMOV"`
	ATIVO      Text `json:"ATIVO"`
}

type Salesperson struct {
	CODVEND Text `json:"CODVEND"`
	APELIDO Text `json:"APELIDO"`
	EMAIL   Text `json:"EMAIL"`
	TIPVEND Text `json:"TIPVEND"`
	ATIVO   Text `json:"ATIVO"`
}

func (s Salesperson) Active() bool { return s.ATIVO.Empty() || s.ATIVO.YN() }

// Lead – karta w kanbanie.
type Lead struct {
	CODLEAD     Text `json:"CODLEAD"`
	NOME        Text `json:"NOME"`
	CODPARC     Text `json:"CODPARC"`
	CODFUNIL    Text `json:"CODFUNIL"`
	CODESTAGIO  Text `json:"CODESTAGIO"`
	STATUS_LEAD Text `json:"STATUS_LEAD"` // EM_ANDAMENTO / GANHO / PERDIDO
	VALOR       Text `json:"VALOR"`
	CODUSUARIO  Text `json:"CODUSUARIO"`
	ATIVO       Text `json:"ATIVO"`
}

// Closed – GANHO/PERDIDO nie mogą już zmieniać etapu.
func (l Lead) Closed() bool {
	return l.STATUS_LEAD == "GANHO" || l.STATUS_LEAD == "PERDIDO"
}

// Activity – wydarzenie w kalendarzu.
type Activity struct {
	CODATIVIDADE Text `json:"CODATIVIDADE"`
	CODLEAD      Text `json:"CODLEAD"`
	TIPO         Text `json:"TIPO"`
	TITULO       Text `json:"TITULO"`
	DESCRICAO    Text `json:"DESCRICAO"`
	DATA_INICIO  Text `json:"DATA_INICIO"`
	DATA_FIM     Text `json:"DATA_FIM"`
	STATUS       Text `json:"STATUS"`
	ATIVO        Text `json:"ATIVO"`
}

func (a Activity) Active() bool { return a.ATIVO.Empty() || a.ATIVO.YN() }

// UserProfile – projekcja użytkownika zapisywana przy logowaniu online.
type UserProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Avatar      string `json:"avatar,omitempty"`
	CodVendedor string `json:"codVendedor,omitempty"`
	IDEmpresa   string `json:"ID_EMPRESA,omitempty"`
}

// OpKind – rodzaj zapisu wysyłanego do ERP.
type OpKind string

const (
	OpCreate       OpKind = "create"
	OpUpdate       OpKind = "update"
	OpStatusChange OpKind = "status-change"
	OpDeactivate   OpKind = "deactivate"
)

func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpStatusChange, OpDeactivate:
		return true
	}
	return false
}

// Operation – mutacja z UI (parceiro salvar/deletar, lead estágio, atividade ...).
type Operation struct {
	Kind       OpKind         `json:"kind"`
	Collection string         `json:"collection"`
	Key        string         `json:"key"`
	Payload    map[string]any `json:"payload"`
}

// WriteState – stan wpisu w kolejce.
type WriteState string

const (
	WritePending   WriteState = "pending"
	WriteDelivered WriteState = "delivered"
	WriteFailed    WriteState = "failed"
)

// Freshness – stan świeżości kolekcji w cache.
type Freshness struct {
	Collection  string     `json:"collection"`
	RecordCount int64      `json:"recordCount"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`
	Stale       bool       `json:"stale"`
	LastError   string     `json:"lastError,omitempty"`
}
