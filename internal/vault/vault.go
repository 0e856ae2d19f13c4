// Package vault trzyma weryfikatory haseł ostatnio zalogowanych użytkowników,
// żeby dało się zalogować bez sieci. Hasło w jawnej postaci nigdy nie trafia
// ani do bazy, ani do logów.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Vault struct {
	db     *gorm.DB
	log    zerolog.Logger
	params Params
	now    func() time.Time
}

func New(log zerolog.Logger, gdb *gorm.DB, params Params) *Vault {
	return &Vault{
		db:     gdb,
		log:    log.With().Str("component", "vault").Logger(),
		params: params,
		now:    time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RecordSuccessfulLogin zapisuje (albo nadpisuje) weryfikator i profil użytkownika.
// Wołać wyłącznie po udanym logowaniu online.
func (v *Vault) RecordSuccessfulLogin(ctx context.Context, user domain.UserProfile, password string) error {
	email := normalizeEmail(user.Email)
	if email == "" {
		return fmt.Errorf("%w: user without email", domain.ErrInvalidOperation)
	}
	verifier, err := newVerifier(password, v.params)
	if err != nil {
		return err
	}
	profile, err := json.Marshal(user)
	if err != nil {
		return err
	}

	row := db.Credential{
		Email:       email,
		UserID:      user.ID,
		Name:        user.Name,
		Role:        user.Role,
		Profile:     datatypes.JSON(profile),
		Verifier:    verifier,
		LastLoginAt: v.now().UTC(),
	}
	if err := v.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "name", "role", "profile", "verifier", "last_login_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: save credential: %v", domain.ErrStorageUnavailable, err)
	}

	v.log.Info().Str("email", email).Msg("offline credential recorded")
	return nil
}

// ValidateOffline sprawdza hasło względem zapisanego weryfikatora.
// Brak rekordu -> ErrNoOfflineCredential, złe hasło -> ErrWrongPassword.
func (v *Vault) ValidateOffline(ctx context.Context, email, password string) (domain.UserProfile, error) {
	email = normalizeEmail(email)
	var row db.Credential
	err := v.db.WithContext(ctx).Where("email = ?", email).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserProfile{}, domain.ErrNoOfflineCredential
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("%w: load credential: %v", domain.ErrStorageUnavailable, err)
	}

	ok, err := checkVerifier(password, row.Verifier)
	if err != nil {
		// uszkodzony rekord – jak brak poświadczeń, wymaga logowania online
		v.log.Error().Err(err).Str("email", email).Msg("corrupt offline credential")
		return domain.UserProfile{}, fmt.Errorf("%w: %v", domain.ErrNoOfflineCredential, err)
	}
	if !ok {
		v.log.Warn().Str("email", email).Msg("offline login: wrong password")
		return domain.UserProfile{}, domain.ErrWrongPassword
	}

	var user domain.UserProfile
	if err := json.Unmarshal(row.Profile, &user); err != nil {
		return domain.UserProfile{}, fmt.Errorf("%w: decode profile: %v", domain.ErrStorageUnavailable, err)
	}
	return user, nil
}

// Forget usuwa poświadczenia (np. "wyloguj i zapomnij to urządzenie").
func (v *Vault) Forget(ctx context.Context, email string) error {
	if err := v.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Delete(&db.Credential{}).Error; err != nil {
		return fmt.Errorf("%w: forget credential: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// LastLogin – kiedy użytkownik ostatnio logował się online (zero gdy nigdy).
func (v *Vault) LastLogin(ctx context.Context, email string) (time.Time, error) {
	var row db.Credential
	err := v.db.WithContext(ctx).Select("last_login_at").Where("email = ?", normalizeEmail(email)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return row.LastLoginAt, nil
}
