package erp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(zerolog.Nop(), Config{BaseURL: srv.URL + "/", DeviceID: "dev-1", Token: "tok"})
}

func TestFetchSendsHeaders(t *testing.T) {
	var got http.Header
	var gotURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotURL = r.URL.String()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"CODPARC":1}]`))
	})

	body, err := c.Fetch(context.Background(), "/api/vendedores?tipo=todos")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"CODPARC":1}]`, string(body))
	assert.Equal(t, "/api/vendedores?tipo=todos", gotURL)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "dev-1", got.Get("X-Device-ID"))
	assert.Equal(t, defaultUserAgent, got.Get("User-Agent"))
}

func TestFetchDecodesLatin1(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=iso-8859-1")
		// "SÃO PAULO" w ISO-8859-1
		_, _ = w.Write([]byte("[{\"NOMEPARC\":\"S\xc3O PAULO\"}]"))
	})

	body, err := c.Fetch(context.Background(), "/x")
	require.NoError(t, err)
	var recs []map[string]string
	require.NoError(t, json.Unmarshal(body, &recs))
	assert.Equal(t, "SÃO PAULO", recs[0]["NOMEPARC"])
}

func TestHTTPErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusConflict, false},
	}
	for _, tc := range cases {
		status := tc.status
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", status)
		})
		_, err := c.Fetch(context.Background(), "/x")
		require.Error(t, err)
		assert.Equal(t, tc.transient, domain.Transient(err), "status %d", status)
		assert.Equal(t, !tc.transient, errors.Is(err, domain.ErrRemoteRejected), "status %d", status)
		assert.True(t, IsHTTPStatus(err, status))
	}
}

func TestTransportErrorIsNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(zerolog.Nop(), Config{BaseURL: url})
	_, err := c.Fetch(context.Background(), "/x")
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
}

func TestTimeoutIsNetworkUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	c := New(zerolog.Nop(), Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Fetch(context.Background(), "/slow")
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
}

func TestDeliverIdempotencyAndEcho(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotKey = r.Header.Get("Idempotency-Key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"success":true,"data":{"CODPARC":9,"NOMEPARC":"Novo"}}`))
	})

	echo, err := c.Deliver(context.Background(), "/api/sankhya/parceiros/salvar", "q-1", map[string]any{"NOMEPARC": "Novo"})
	require.NoError(t, err)
	assert.Equal(t, "q-1", gotKey)
	assert.Equal(t, "Novo", gotBody["NOMEPARC"])
	assert.JSONEq(t, `{"CODPARC":9,"NOMEPARC":"Novo"}`, string(echo))
}

func TestDeliverWithoutEcho(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	echo, err := c.Deliver(context.Background(), "/x", "q-2", map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, echo)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "senha123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"abc","user":{"CODUSUARIO":42,"NOME":"Vendedor Um","EMAIL":"vendedor1@empresa.com","FUNCAO":"Vendedor","CODVEND":7}}`))
	})
	ctx := context.Background()

	res, err := c.Login(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Token)
	assert.Equal(t, domain.UserProfile{ID: "42", Name: "Vendedor Um", Email: "vendedor1@empresa.com", Role: "Vendedor", CodVendedor: "7"}, res.User)

	_, err = c.Login(ctx, "vendedor1@empresa.com", "errada")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
}

func TestLoginPlainUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","name":"Ana","role":"Gerente"}`))
	})
	res, err := c.Login(context.Background(), "ana@empresa.com", "x")
	require.NoError(t, err)
	assert.Equal(t, "ana@empresa.com", res.User.Email)
	assert.Equal(t, "Gerente", res.User.Role)
	assert.Empty(t, res.Token)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.Health(context.Background()))
}
