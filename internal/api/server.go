// Package api wystawia cache i kolejkę zapisów lokalnemu front-endowi przez HTTP.
// Trasy odpowiadają tym, których UI używało wcześniej bezpośrednio na serwerze.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bartek5186/sfa-offline/internal/catalog"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/bartek5186/sfa-offline/internal/outbox"
	"github.com/bartek5186/sfa-offline/internal/session"
	"github.com/bartek5186/sfa-offline/internal/syncer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type Sync interface {
	TryRunFullSync(ctx context.Context, uc syncer.UserContext) (syncer.SyncResult, error)
	InProgress() bool
	LastResult() *syncer.SyncResult
}

type Sessions interface {
	Login(ctx context.Context, email, password string) (session.LoginResult, error)
	Logout(ctx context.Context, forget bool) error
	Current(ctx context.Context) (domain.UserProfile, bool, error)
}

type Writes interface {
	Submit(ctx context.Context, op domain.Operation) (outbox.SubmitResult, error)
	Drain(ctx context.Context) (outbox.DrainResult, error)
	Retry(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	Failed(ctx context.Context) ([]outbox.Entry, error)
	Pending(ctx context.Context) ([]outbox.Entry, error)
	Stats(ctx context.Context) (outbox.Stats, error)
}

type Connectivity interface {
	Online() bool
}

type Deps struct {
	Catalog  *catalog.Catalog
	Sync     Sync
	Sessions Sessions
	Writes   Writes
	Conn     Connectivity
	Gatherer prometheus.Gatherer // nil = bez /metrics
}

type Server struct {
	log  zerolog.Logger
	deps Deps
	http *http.Server
}

func New(log zerolog.Logger, addr string, deps Deps) *Server {
	s := &Server{
		log:  log.With().Str("component", "api").Logger(),
		deps: deps,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("took", d).
			Msg("request")
	}))

	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Post("/prefetch", s.prefetch)

		r.Get("/parceiros", s.parceiros)
		r.Get("/parceiros/{cod}", s.parceiro)
		r.Get("/produtos", s.produtos)
		r.Get("/produtos/{cod}", s.produto)
		r.Get("/produtos/{cod}/unidades", s.unidades)
		r.Get("/produtos/{cod}/precos", s.precosPorTabela)
		r.Get("/precos", s.precos)
		r.Get("/marcas", s.marcas)
		r.Get("/tabelas-precos-config", s.tabelasPrecos)
		r.Get("/tipos-operacao", s.tiposOperacao)
		r.Get("/vendedores", s.vendedores)
		r.Get("/leads", s.leads)
		r.Get("/atividades", s.atividades)

		r.Route("/writes", func(r chi.Router) {
			r.Post("/", s.submit)
			r.Post("/drain", s.drain)
			r.Get("/pending", s.pending)
			r.Get("/failed", s.failed)
			r.Post("/{id}/retry", s.retry)
			r.Delete("/{id}", s.discard)
		})
	})
	return r
}

// Start uruchamia serwer w tle; błąd bindowania wraca od razu.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("local api listening")
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("local api stopped")
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
