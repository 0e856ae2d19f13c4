package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bartek5186/sfa-offline/internal/domain"
)

// LoginResult – profil i token z logowania online.
type LoginResult struct {
	User  domain.UserProfile
	Token string
}

// loginUser – backend zwraca albo nasze nazwy pól, albo kolumny Sankhya.
type loginUser struct {
	ID          domain.Text `json:"id"`
	CODUSUARIO  domain.Text `json:"CODUSUARIO"`
	Name        domain.Text `json:"name"`
	NOME        domain.Text `json:"NOME"`
	Email       domain.Text `json:"email"`
	EMAIL       domain.Text `json:"EMAIL"`
	Role        domain.Text `json:"role"`
	FUNCAO      domain.Text `json:"FUNCAO"`
	Avatar      domain.Text `json:"avatar"`
	AVATAR      domain.Text `json:"AVATAR"`
	CodVendedor domain.Text `json:"codVendedor"`
	CODVEND     domain.Text `json:"CODVEND"`
	IDEmpresa   domain.Text `json:"ID_EMPRESA"`
}

func first(vals ...domain.Text) string {
	for _, v := range vals {
		if !v.Empty() {
			return v.String()
		}
	}
	return ""
}

func (u loginUser) profile() domain.UserProfile {
	return domain.UserProfile{
		ID:          first(u.ID, u.CODUSUARIO),
		Name:        first(u.Name, u.NOME),
		Email:       first(u.Email, u.EMAIL),
		Role:        first(u.Role, u.FUNCAO),
		Avatar:      first(u.Avatar, u.AVATAR),
		CodVendedor: first(u.CodVendedor, u.CODVEND),
		IDEmpresa:   u.IDEmpresa.String(),
	}
}

// Login – logowanie online. 401/403 -> ErrWrongPassword, brak sieci -> ErrNetworkUnavailable.
// Udany login ustawia token klienta.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}
	resp, err := c.do(ctx, http.MethodPost, c.cfg.LoginPath, body, nil)
	if err != nil {
		var herr *HTTPError
		if errors.As(err, &herr) && (herr.Status == http.StatusUnauthorized || herr.Status == http.StatusForbidden) {
			return LoginResult{}, fmt.Errorf("%w: %w", domain.ErrWrongPassword, err)
		}
		return LoginResult{}, err
	}

	var envelope struct {
		User  json.RawMessage `json:"user"`
		Token string          `json:"token"`
	}
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return LoginResult{}, fmt.Errorf("%w: login response: %v", domain.ErrSchemaMismatch, err)
	}
	raw := bytes.TrimSpace(envelope.User)
	if len(raw) == 0 || raw[0] != '{' {
		raw = resp // użytkownik bez koperty
	}
	var u loginUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return LoginResult{}, fmt.Errorf("%w: login user: %v", domain.ErrSchemaMismatch, err)
	}
	user := u.profile()
	if user.Email == "" {
		user.Email = email
	}
	if user.ID == "" && user.Name == "" {
		return LoginResult{}, fmt.Errorf("%w: login response without user", domain.ErrSchemaMismatch)
	}

	if envelope.Token != "" {
		c.SetToken(envelope.Token)
	}
	c.log.Info().Str("email", user.Email).Msg("online login ok")
	return LoginResult{User: user, Token: envelope.Token}, nil
}
