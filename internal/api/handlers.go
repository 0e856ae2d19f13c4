package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bartek5186/sfa-offline/internal/catalog"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/outbox"
	"github.com/bartek5186/sfa-offline/internal/syncer"
	"github.com/go-chi/chi/v5"
)

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

func queryBool(r *http.Request, name string, def bool) bool {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return strings.EqualFold(v, "S")
	}
	return b
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s: bad date %q", domain.ErrInvalidOperation, name, v)
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: body: %v", domain.ErrInvalidOperation, err)
	}
	return nil
}

type statusResponse struct {
	Online        bool                `json:"online"`
	Syncing       bool                `json:"syncing"`
	DataAvailable bool                `json:"dataAvailable"`
	User          *domain.UserProfile `json:"user,omitempty"`
	LastSync      *syncer.SyncResult  `json:"lastSync,omitempty"`
	Collections   []domain.Freshness  `json:"collections"`
	Outbox        outbox.Stats        `json:"outbox"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := statusResponse{
		Online:   s.deps.Conn.Online(),
		Syncing:  s.deps.Sync.InProgress(),
		LastSync: s.deps.Sync.LastResult(),
	}
	var err error
	if out.DataAvailable, err = s.deps.Catalog.IsDataAvailable(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if out.Collections, err = s.deps.Catalog.Freshness(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if out.Outbox, err = s.deps.Writes.Stats(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if u, ok, err := s.deps.Sessions.Current(ctx); err == nil && ok {
		out.User = &u
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Sessions.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Forget bool `json:"forget"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := s.deps.Sessions.Logout(r.Context(), body.Forget); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) prefetch(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Conn.Online() {
		writeError(w, r, fmt.Errorf("%w: offline", domain.ErrNetworkUnavailable))
		return
	}
	var uc syncer.UserContext
	if u, ok, err := s.deps.Sessions.Current(r.Context()); err == nil && ok {
		uc = syncer.UserContext{Email: u.Email, CodVendedor: u.CodVendedor}
	}
	res, err := s.deps.Sync.TryRunFullSync(r.Context(), uc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) parceiros(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.deps.Catalog.GetParceiros(r.Context(), catalog.PartnerFilter{
		Search:     q.Get("search"),
		OnlyActive: queryBool(r, "ativos", false),
		CodVend:    q.Get("codVend"),
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "pageSize", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) parceiro(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Catalog.GetParceiro(r.Context(), chi.URLParam(r, "cod"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) produtos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.deps.Catalog.GetProdutos(r.Context(), catalog.ProductFilter{
		Search:     q.Get("search"),
		Marca:      q.Get("marca"),
		Grupo:      q.Get("grupo"),
		OnlyActive: queryBool(r, "ativos", false),
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "pageSize", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) produto(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Catalog.GetProduto(r.Context(), chi.URLParam(r, "cod"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// unidades – ceny jednostek liczone od ceny tabeli (?nutab=) albo ceny produktu.
func (s *Server) unidades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cod := chi.URLParam(r, "cod")
	p, err := s.deps.Catalog.GetProduto(ctx, cod)
	if err != nil {
		writeError(w, r, err)
		return
	}
	base := p.Preco
	if nutab := r.URL.Query().Get("nutab"); nutab != "" {
		price, ok, err := s.deps.Catalog.GetPrecoTabela(ctx, cod, nutab)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if ok {
			base = price
		}
	}
	units, err := s.deps.Catalog.GetUnidades(ctx, cod, base)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (s *Server) precosPorTabela(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Catalog.GetPrecosPorTabela(r.Context(), chi.URLParam(r, "cod"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) precos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cod := q.Get("codProd")
	if cod == "" {
		writeError(w, r, fmt.Errorf("%w: codProd required", domain.ErrInvalidOperation))
		return
	}
	res, err := s.deps.Catalog.GetPrecos(r.Context(), cod, q.Get("nutab"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) marcas(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Catalog.GetMarcas(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) tabelasPrecos(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Catalog.GetTabelasPrecosConfig(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": res})
}

func (s *Server) tiposOperacao(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Catalog.GetTiposOperacao(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiposOperacao": res})
}

func (s *Server) vendedores(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Catalog.GetVendedores(r.Context(), catalog.SalespersonFilter{
		OnlyActive: queryBool(r, "ativos", true),
		Tipo:       r.URL.Query().Get("tipo"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) leads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.deps.Catalog.GetLeads(r.Context(), catalog.LeadFilter{
		Search:     q.Get("search"),
		CodFunil:   q.Get("codFunil"),
		CodEstagio: q.Get("codEstagio"),
		Status:     q.Get("status"),
		CodUsuario: q.Get("codUsuario"),
		OnlyOpen:   queryBool(r, "abertos", false),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) atividades(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.deps.Catalog.GetAtividades(r.Context(), catalog.ActivityFilter{
		CodLead:    q.Get("codLead"),
		Status:     q.Get("status"),
		From:       from,
		To:         to,
		OnlyActive: queryBool(r, "ativos", true),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var op domain.Operation
	if err := decodeBody(r, &op); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Writes.Submit(r.Context(), op)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.DeliveredImmediately {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) drain(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Conn.Online() {
		writeError(w, r, fmt.Errorf("%w: offline", domain.ErrNetworkUnavailable))
		return
	}
	res, err := s.deps.Writes.Drain(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Writes.Pending(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) failed(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Writes.Failed(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Writes.Retry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) discard(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Writes.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
