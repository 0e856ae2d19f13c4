// internal/collections/builtin.go
package collections

import "github.com/bartek5186/sfa-offline/internal/domain"

const (
	Partners        = "partners"
	Products        = "products"
	PriceTables     = "price_tables"
	PriceExceptions = "price_exceptions"
	Volumes         = "volumes"
	OperationTypes  = "operation_types"
	Salespeople     = "salespeople"
	Leads           = "leads"
	Activities      = "activities"
)

func init() {
	Register(Spec{
		Name:      Partners,
		Path:      "/api/sankhya/parceiros",
		KeyFields: []string{"CODPARC"},
		Required:  true,
		WritePaths: map[domain.OpKind]string{
			domain.OpCreate:     "/api/sankhya/parceiros/salvar",
			domain.OpUpdate:     "/api/sankhya/parceiros/salvar",
			domain.OpDeactivate: "/api/sankhya/parceiros/deletar",
		},
	})
	Register(Spec{
		Name:      Products,
		Path:      "/api/sankhya/produtos",
		KeyFields: []string{"CODPROD"},
		Required:  true,
	})
	Register(Spec{
		Name:      PriceTables,
		Path:      "/api/tabelas-precos-config",
		Envelope:  "configs",
		KeyFields: []string{"NUTAB"},
		Required:  true,
	})
	Register(Spec{
		Name:       PriceExceptions,
		Path:       "/api/sankhya/precos/excecoes",
		KeyFields:  []string{"CODPROD", "NUTAB"},
		Qualifiers: []string{"CODLOCAL", "CONTROLE"},
		AllowEmpty: true,
		Required:   true,
	})
	Register(Spec{
		Name:       Volumes,
		Path:       "/api/sankhya/produtos/volumes",
		KeyFields:  []string{"CODPROD", "CODVOL"},
		AllowEmpty: true,
		Required:   true,
	})
	Register(Spec{
		Name:      OperationTypes,
		Path:      "/api/sankhya/tipos-negociacao?tipo=operacao",
		Envelope:  "tiposOperacao",
		KeyFields: []string{"CODTIPOPER"},
		Required:  true,
	})
	Register(Spec{
		Name:      Salespeople,
		Path:      "/api/vendedores?tipo=todos",
		KeyFields: []string{"CODVEND"},
		Required:  true,
	})
	Register(Spec{
		Name:       Leads,
		Path:       "/api/leads",
		KeyFields:  []string{"CODLEAD"},
		AllowEmpty: true,
		WritePaths: map[domain.OpKind]string{
			domain.OpStatusChange: "/api/leads/atualizar-estagio",
		},
	})
	Register(Spec{
		Name:       Activities,
		Path:       "/api/leads/eventos",
		KeyFields:  []string{"CODATIVIDADE"},
		AllowEmpty: true,
		WritePaths: map[domain.OpKind]string{
			domain.OpCreate:       "/api/leads/atividades/criar",
			domain.OpUpdate:       "/api/leads/atividades/atualizar",
			domain.OpStatusChange: "/api/leads/atividades/atualizar-status",
		},
	})
}
