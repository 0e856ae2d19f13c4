package vault

import (
	"context"
	"strings"
	"testing"

	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lekkie parametry – testy nie muszą mielić 64 MB
var testParams = Params{MemoryKB: 1024, Time: 1, Parallelism: 1}

func newTestVault(t *testing.T) (*Vault, *db.Handle) {
	t.Helper()
	h, err := db.OpenAt(t.TempDir(), db.Options{})
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })
	return New(zerolog.Nop(), h.DB, testParams), h
}

var vendedor = domain.UserProfile{
	ID:          "42",
	Name:        "Vendedor Um",
	Email:       "vendedor1@empresa.com",
	Role:        "Vendedor",
	CodVendedor: "7",
}

func TestValidateOfflineAfterLogin(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.RecordSuccessfulLogin(ctx, vendedor, "senha123"))

	user, err := v.ValidateOffline(ctx, "vendedor1@empresa.com", "senha123")
	require.NoError(t, err)
	assert.Equal(t, vendedor, user)

	// e-mail bez względu na wielkość liter i spacje
	_, err = v.ValidateOffline(ctx, "  Vendedor1@Empresa.com ", "senha123")
	require.NoError(t, err)
}

func TestValidateOfflineWrongPassword(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.RecordSuccessfulLogin(ctx, vendedor, "senha123"))

	_, err := v.ValidateOffline(ctx, vendedor.Email, "errada")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)
}

func TestValidateOfflineUnknownUser(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.ValidateOffline(context.Background(), "ninguem@empresa.com", "x")
	assert.ErrorIs(t, err, domain.ErrNoOfflineCredential)
}

func TestPasswordNeverStoredInPlaintext(t *testing.T) {
	v, h := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.RecordSuccessfulLogin(ctx, vendedor, "senha123"))

	var row db.Credential
	require.NoError(t, h.DB.Where("email = ?", vendedor.Email).Take(&row).Error)
	assert.True(t, strings.HasPrefix(row.Verifier, "$argon2id$"))
	assert.NotContains(t, row.Verifier, "senha123")
	assert.NotContains(t, string(row.Profile), "senha123")
}

func TestRecordSuccessfulLoginOverwrites(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.RecordSuccessfulLogin(ctx, vendedor, "velha"))

	updated := vendedor
	updated.Role = "Gerente"
	require.NoError(t, v.RecordSuccessfulLogin(ctx, updated, "nova"))

	_, err := v.ValidateOffline(ctx, vendedor.Email, "velha")
	assert.ErrorIs(t, err, domain.ErrWrongPassword)

	user, err := v.ValidateOffline(ctx, vendedor.Email, "nova")
	require.NoError(t, err)
	assert.Equal(t, "Gerente", user.Role)
}

func TestCorruptVerifierRequiresOnlineLogin(t *testing.T) {
	v, h := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.RecordSuccessfulLogin(ctx, vendedor, "senha123"))
	require.NoError(t, h.DB.Model(&db.Credential{}).Where("email = ?", vendedor.Email).Update("verifier", "lixo").Error)

	_, err := v.ValidateOffline(ctx, vendedor.Email, "senha123")
	assert.ErrorIs(t, err, domain.ErrNoOfflineCredential)
}

func TestForget(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.RecordSuccessfulLogin(ctx, vendedor, "senha123"))

	last, err := v.LastLogin(ctx, vendedor.Email)
	require.NoError(t, err)
	assert.False(t, last.IsZero())

	require.NoError(t, v.Forget(ctx, vendedor.Email))
	_, err = v.ValidateOffline(ctx, vendedor.Email, "senha123")
	assert.ErrorIs(t, err, domain.ErrNoOfflineCredential)
}

func TestRecordRejectsEmptyInput(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	err := v.RecordSuccessfulLogin(ctx, domain.UserProfile{Name: "sem email"}, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	err = v.RecordSuccessfulLogin(ctx, vendedor, "")
	assert.Error(t, err)
}

func TestVerifierRoundTrip(t *testing.T) {
	enc, err := newVerifier("abc", testParams)
	require.NoError(t, err)

	ok, err := checkVerifier("abc", enc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checkVerifier("abd", enc)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = checkVerifier("abc", "$bcrypt$x")
	assert.ErrorIs(t, err, ErrInvalidVerifier)
}
