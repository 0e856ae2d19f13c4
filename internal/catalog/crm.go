package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/bartek5186/sfa-offline/internal/collections"
	"github.com/bartek5186/sfa-offline/internal/domain"
)

type LeadFilter struct {
	Search     string
	CodFunil   string
	CodEstagio string
	Status     string
	CodUsuario string
	OnlyOpen   bool
}

func (c *Catalog) GetLeads(ctx context.Context, f LeadFilter) ([]domain.Lead, error) {
	all, err := getAll[domain.Lead](ctx, c, collections.Leads)
	if err != nil {
		return nil, err
	}
	m := newMatcher(f.Search)
	out := all[:0]
	for _, l := range all {
		switch {
		case f.CodFunil != "" && l.CODFUNIL.String() != f.CodFunil,
			f.CodEstagio != "" && l.CODESTAGIO.String() != f.CodEstagio,
			f.Status != "" && l.STATUS_LEAD.String() != f.Status,
			f.CodUsuario != "" && l.CODUSUARIO.String() != f.CodUsuario,
			f.OnlyOpen && l.Closed(),
			!l.ATIVO.Empty() && !l.ATIVO.YN(),
			!m.empty() && !m.text(l.NOME.String(), l.CODLEAD.String()):
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CODLEAD.Int() > out[j].CODLEAD.Int() })
	return out, nil
}

type ActivityFilter struct {
	CodLead    string
	Status     string
	From, To   time.Time // zakres DATA_INICIO, zero = bez ograniczenia
	OnlyActive bool
}

func (c *Catalog) GetAtividades(ctx context.Context, f ActivityFilter) ([]domain.Activity, error) {
	all, err := getAll[domain.Activity](ctx, c, collections.Activities)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if f.CodLead != "" && a.CODLEAD.String() != f.CodLead {
			continue
		}
		if f.Status != "" && a.STATUS.String() != f.Status {
			continue
		}
		if f.OnlyActive && !a.Active() {
			continue
		}
		if !f.From.IsZero() || !f.To.IsZero() {
			start := parseDate(a.DATA_INICIO.String())
			if start.IsZero() {
				continue
			}
			if !f.From.IsZero() && start.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && start.After(f.To) {
				continue
			}
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return parseDate(out[i].DATA_INICIO.String()).Before(parseDate(out[j].DATA_INICIO.String()))
	})
	return out, nil
}
