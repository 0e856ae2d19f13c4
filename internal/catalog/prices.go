package catalog

import (
	"context"
	"sort"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ProjectPrice przelicza cenę jednostki bazowej na jednostkę o współczynniku f.
// f <= 0 albo f = 1 zostawia cenę bazową.
func ProjectPrice(base, f decimal.Decimal) decimal.Decimal {
	if !f.IsPositive() || f.Equal(one) {
		return base
	}
	return base.Mul(f)
}

// GetVolumes – wszystkie jednostki alternatywne produktu.
func (c *Catalog) GetVolumes(ctx context.Context, codProd string) ([]domain.Volume, error) {
	return getPrefix[domain.Volume](ctx, c, collections.Volumes, collections.KeyPrefix(codProd))
}

// Unit – jednostka sprzedaży z ceną już przeliczoną.
type Unit struct {
	CodVol    string          `json:"CODVOL"`
	Descricao string          `json:"DESCRICAO"`
	Fator     decimal.Decimal `json:"fator"`
	Preco     decimal.Decimal `json:"preco"`
	Padrao    bool            `json:"padrao"`
}

// GetUnidades – jednostka domyślna + aktywne volumes. base to cena jednostki
// bazowej (zwykle preco produktu albo cena z tabeli).
func (c *Catalog) GetUnidades(ctx context.Context, codProd string, base decimal.Decimal) ([]Unit, error) {
	p, err := c.GetProduto(ctx, codProd)
	if err != nil {
		return nil, err
	}
	vols, err := c.GetVolumes(ctx, codProd)
	if err != nil {
		return nil, err
	}

	baseUnit := p.BaseUnit()
	out := []Unit{{CodVol: baseUnit, Descricao: baseUnit, Fator: one, Preco: base, Padrao: true}}
	for _, v := range vols {
		if !v.Active() || v.CODVOL.String() == baseUnit {
			continue
		}
		f := v.Factor()
		desc := v.DESCRDANFE.String()
		if desc == "" {
			desc = v.CODVOL.String()
		}
		out = append(out, Unit{CodVol: v.CODVOL.String(), Descricao: desc, Fator: f, Preco: ProjectPrice(base, f)})
	}
	return out, nil
}

// GetPrecos – wyjątki cenowe dla pary produkt/tabela, od najbardziej
// szczegółowego (więcej kwalifikatorów, potem nowszy DTVIGOR).
// Pusta lista = brak ceny w tabeli, a nie cena zero.
func (c *Catalog) GetPrecos(ctx context.Context, codProd, nutab string) ([]domain.PriceException, error) {
	out, err := getPrefix[domain.PriceException](ctx, c, collections.PriceExceptions, collections.KeyPrefix(codProd, nutab))
	if err != nil {
		return nil, err
	}
	sortBySpecificity(out)
	return out, nil
}

func sortBySpecificity(out []domain.PriceException) {
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Specificity(), out[j].Specificity()
		if si != sj {
			return si > sj
		}
		return vigor(out[i].DTVIGOR.String()) > vigor(out[j].DTVIGOR.String())
	})
}

// GetPrecoTabela – pierwsza czytelna cena z GetPrecos. ok=false: brak ceny.
func (c *Catalog) GetPrecoTabela(ctx context.Context, codProd, nutab string) (decimal.Decimal, bool, error) {
	excs, err := c.GetPrecos(ctx, codProd, nutab)
	if err != nil {
		return decimal.Zero, false, err
	}
	for _, e := range excs {
		if v, ok := e.VLRVENDA.Decimal(); ok {
			return v, true, nil
		}
	}
	return decimal.Zero, false, nil
}

// TablePrice – cena produktu w jednej tabeli ("ver preços").
type TablePrice struct {
	NUTAB  string          `json:"NUTAB"`
	Tabela string          `json:"tabela"`
	Preco  decimal.Decimal `json:"preco"`
	OK     bool            `json:"temPreco"`
}

// GetPrecosPorTabela – cena produktu w każdej skonfigurowanej tabeli.
func (c *Catalog) GetPrecosPorTabela(ctx context.Context, codProd string) ([]TablePrice, error) {
	tables, err := c.GetTabelasPrecosConfig(ctx)
	if err != nil {
		return nil, err
	}
	excs, err := getPrefix[domain.PriceException](ctx, c, collections.PriceExceptions, collections.KeyPrefix(codProd))
	if err != nil {
		return nil, err
	}
	byTable := map[string][]domain.PriceException{}
	for _, e := range excs {
		byTable[e.NUTAB.String()] = append(byTable[e.NUTAB.String()], e)
	}

	out := make([]TablePrice, 0, len(tables))
	for _, t := range tables {
		tp := TablePrice{NUTAB: t.NUTAB.String(), Tabela: t.Label()}
		list := byTable[tp.NUTAB]
		sortBySpecificity(list)
		for _, e := range list {
			if v, ok := e.VLRVENDA.Decimal(); ok {
				tp.Preco, tp.OK = v, true
				break
			}
		}
		out = append(out, tp)
	}
	return out, nil
}
