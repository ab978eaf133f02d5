package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chirino/portal-service/internal/model"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) IsClientAllowed(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.AllowedClient{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) AddAllowedClient(ctx context.Context, email, name, code string) (*model.AllowedClient, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &registrystore.ValidationError{Field: "email", Message: "a valid email address is required"}
	}

	label, err := s.GetLabelByCode(ctx, code)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			return nil, &registrystore.UnknownClientError{Code: code}
		}
		return nil, err
	}

	client := model.AllowedClient{
		ID:            uuid.New(),
		Email:         email,
		Name:          name,
		ClientLabelID: label.ID,
	}
	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &registrystore.ConflictError{Message: "email already allowed: " + email}
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) RemoveAllowedClient(ctx context.Context, email string) error {
	res := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(email)).
		Delete(&model.AllowedClient{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "allowed client", ID: email}
	}
	return nil
}

func (s *Store) GetClientCode(ctx context.Context, email string) (string, error) {
	label, err := s.GetClientLabel(ctx, email)
	if err != nil {
		return "", err
	}
	return label.Code, nil
}

// GetClientLabel resolves an email to its client label through the
// allowed-clients table. Only active labels resolve; a client whose
// label was deactivated gets a NotFoundError and no portal access.
func (s *Store) GetClientLabel(ctx context.Context, email string) (*model.ClientLabel, error) {
	var label model.ClientLabel
	err := s.db.WithContext(ctx).
		Joins("JOIN allowed_clients ON allowed_clients.client_label_id = client_labels.id").
		Where("allowed_clients.email = ? AND client_labels.active = ?", normalizeEmail(email), true).
		First(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "client label for email", ID: email}
	}
	if err != nil {
		return nil, err
	}
	return &label, nil
}

func (s *Store) CreateMagicToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	token := model.MagicToken{
		ID:        uuid.New(),
		Email:     normalizeEmail(email),
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return s.db.WithContext(ctx).Create(&token).Error
}

// ConsumeMagicToken redeems a token hash: the row is deleted inside the
// same transaction that read it, so a token verifies at most once.
func (s *Store) ConsumeMagicToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var email string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token model.MagicToken
		err := tx.
			Where("token_hash = ? AND expires_at > ?", tokenHash, now).
			First(&token).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &registrystore.NotFoundError{Resource: "magic token", ID: "(redacted)"}
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&model.MagicToken{}, "token_hash = ?", tokenHash).Error; err != nil {
			return err
		}
		email = token.Email
		return nil
	})
	if err != nil {
		return "", err
	}
	return email, nil
}

func (s *Store) DeleteExpiredMagicTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.MagicToken{})
	return res.RowsAffected, res.Error
}
