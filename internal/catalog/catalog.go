// Package catalog to jedyna ścieżka odczytu dla UI. Wszystko czyta z lokalnego
// cache, tak samo online i offline; wartości pochodne (ceny, przeliczniki)
// liczone są tylko tutaj.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/store"
	"github.com/rs/zerolog"
)

type Catalog struct {
	log   zerolog.Logger
	store *store.Store
}

func New(log zerolog.Logger, st *store.Store) *Catalog {
	return &Catalog{log: log.With().Str("component", "catalog").Logger(), store: st}
}

// decodeAll – rekord, którego nie da się odczytać, pomijamy z ostrzeżeniem.
func decodeAll[T any](log zerolog.Logger, collection string, recs []store.Record) []T {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := json.Unmarshal(r.Payload, &v); err != nil {
			log.Warn().Err(err).Str("collection", collection).Str("key", r.Key).Msg("skip undecodable record")
			continue
		}
		out = append(out, v)
	}
	return out
}

func getAll[T any](ctx context.Context, c *Catalog, collection string) ([]T, error) {
	recs, err := c.store.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c.log, collection, recs), nil
}

func getPrefix[T any](ctx context.Context, c *Catalog, collection, prefix string) ([]T, error) {
	recs, err := c.store.GetPrefix(ctx, collection, prefix)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c.log, collection, recs), nil
}

func getOne[T any](ctx context.Context, c *Catalog, collection, key string) (T, error) {
	var v T
	rec, err := c.store.Get(ctx, collection, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s/%s: %v", domain.ErrSchemaMismatch, collection, key, err)
	}
	return v, nil
}

type PartnerFilter struct {
	Search     string
	OnlyActive bool
	CodVend    string
	Page       int
	PageSize   int
}

func (c *Catalog) GetParceiros(ctx context.Context, f PartnerFilter) (PageResult[domain.Partner], error) {
	all, err := getAll[domain.Partner](ctx, c, collections.Partners)
	if err != nil {
		return PageResult[domain.Partner]{}, err
	}
	m := newMatcher(f.Search)
	out := all[:0]
	for _, p := range all {
		if f.OnlyActive && !p.Active() {
			continue
		}
		if f.CodVend != "" && p.CODVEND.String() != f.CodVend {
			continue
		}
		if !m.empty() && !m.text(p.NOMEPARC.String(), p.RAZAOSOCIAL.String(), p.CODPARC.String()) && !m.doc(p.CGC_CPF.String()) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return Fold(out[i].NOMEPARC.String()) < Fold(out[j].NOMEPARC.String()) })
	return Paginate(out, f.Page, f.PageSize), nil
}

func (c *Catalog) GetParceiro(ctx context.Context, codParc string) (domain.Partner, error) {
	return getOne[domain.Partner](ctx, c, collections.Partners, codParc)
}

type ProductFilter struct {
	Search     string
	Marca      string
	Grupo      string
	OnlyActive bool
	Page       int
	PageSize   int
}

// withPrice – preco z AD_VLRUNIT (0 gdy brak/nieczytelne).
func withPrice(p domain.Product) domain.Product {
	if v, ok := p.AD_VLRUNIT.Decimal(); ok {
		p.Preco = v
	}
	return p
}

func (c *Catalog) GetProdutos(ctx context.Context, f ProductFilter) (PageResult[domain.Product], error) {
	all, err := getAll[domain.Product](ctx, c, collections.Products)
	if err != nil {
		return PageResult[domain.Product]{}, err
	}
	m := newMatcher(f.Search)
	marca := Fold(f.Marca)
	out := all[:0]
	for _, p := range all {
		if f.OnlyActive && !p.Active() {
			continue
		}
		if marca != "" && Fold(p.MARCA.String()) != marca {
			continue
		}
		if f.Grupo != "" && p.CODGRUPOPROD.String() != f.Grupo {
			continue
		}
		if !m.empty() && !m.text(p.DESCRPROD.String(), p.CODPROD.String(), p.REFERENCIA.String(), p.MARCA.String()) {
			continue
		}
		out = append(out, withPrice(p))
	}
	sort.SliceStable(out, func(i, j int) bool { return Fold(out[i].DESCRPROD.String()) < Fold(out[j].DESCRPROD.String()) })
	return Paginate(out, f.Page, f.PageSize), nil
}

func (c *Catalog) GetProduto(ctx context.Context, codProd string) (domain.Product, error) {
	p, err := getOne[domain.Product](ctx, c, collections.Products, codProd)
	if err != nil {
		return p, err
	}
	return withPrice(p), nil
}

// GetMarcas – unikalne marki aktywnych produktów (kategorie katalogu).
func (c *Catalog) GetMarcas(ctx context.Context) ([]string, error) {
	all, err := getAll[domain.Product](ctx, c, collections.Products)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, p := range all {
		m := p.MARCA.String()
		if m == "" || !p.Active() || seen[Fold(m)] {
			continue
		}
		seen[Fold(m)] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return Fold(out[i]) < Fold(out[j]) })
	return out, nil
}

func (c *Catalog) GetTabelasPrecosConfig(ctx context.Context) ([]domain.PriceTable, error) {
	out, err := getAll[domain.PriceTable](ctx, c, collections.PriceTables)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NUTAB.Int() < out[j].NUTAB.Int() })
	return out, nil
}

func (c *Catalog) GetTiposOperacao(ctx context.Context) ([]domain.OperationType, error) {
	out, err := getAll[domain.OperationType](ctx, c, collections.OperationTypes)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CODTIPOPER.Int() < out[j].CODTIPOPER.Int() })
	return out, nil
}

type SalespersonFilter struct {
	OnlyActive bool
	Tipo       string // TIPVEND, np. "V"
}

func (c *Catalog) GetVendedores(ctx context.Context, f SalespersonFilter) ([]domain.Salesperson, error) {
	all, err := getAll[domain.Salesperson](ctx, c, collections.Salespeople)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if f.OnlyActive && !s.Active() {
			continue
		}
		if f.Tipo != "" && s.TIPVEND.String() != f.Tipo {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return Fold(out[i].APELIDO.String()) < Fold(out[j].APELIDO.String()) })
	return out, nil
}

// IsDataAvailable – czy jest z czego pracować offline (parceiros i produtos w cache).
func (c *Catalog) IsDataAvailable(ctx context.Context) (bool, error) {
	for _, coll := range []string{collections.Partners, collections.Products} {
		n, err := c.store.Count(ctx, coll)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Freshness – stan świeżości wszystkich kolekcji (ekran statusu).
func (c *Catalog) Freshness(ctx context.Context) ([]domain.Freshness, error) {
	return c.store.AllFreshness(ctx)
}
