package model

import (
	"time"

	"github.com/google/uuid"
)

// ClientLabel maps an internal client code to a Missive shared label.
// Rows are never hard-deleted: a label that disappears from Missive is
// deactivated so historical references stay resolvable.
type ClientLabel struct {
	ID             uuid.UUID `json:"id"             gorm:"primaryKey;type:uuid"`
	Code           string    `json:"code"           gorm:"uniqueIndex;not null"`
	Name           string    `json:"name"`
	MissiveLabelID string    `json:"missiveLabelId" gorm:"uniqueIndex;not null"`
	Active         bool      `json:"active"         gorm:"not null;default:true"`
	CreatedAt      time.Time `json:"createdAt"      gorm:"not null"`
	UpdatedAt      time.Time `json:"updatedAt"      gorm:"not null"`
}

func (ClientLabel) TableName() string { return "client_labels" }

// AllowedClient is an email allowed to log in, tied to a client label.
type AllowedClient struct {
	ID            uuid.UUID `json:"id"        gorm:"primaryKey;type:uuid"`
	Email         string    `json:"email"     gorm:"uniqueIndex;not null"`
	Name          string    `json:"name"`
	ClientLabelID uuid.UUID `json:"-"         gorm:"not null;type:uuid;index"`
	CreatedAt     time.Time `json:"createdAt" gorm:"not null"`
}

func (AllowedClient) TableName() string { return "allowed_clients" }

// MagicToken is a single-use login token. Only the SHA-256 hash of the
// token is stored; the plaintext goes out in the magic-link mail.
type MagicToken struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	Email     string    `gorm:"index;not null"`
	TokenHash string    `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (MagicToken) TableName() string { return "magic_tokens" }

// ThreadSummary is the client-safe projection of a Missive conversation.
// Derived on fetch, cached for the configured TTL, never persisted.
type ThreadSummary struct {
	ID             string   `json:"id"`
	Subject        string   `json:"subject"`
	LastActivityAt int64    `json:"lastActivityAt"`
	MessagesCount  int      `json:"messagesCount"`
	Closed         bool     `json:"closed"`
	Authors        []Author `json:"authors,omitempty"`
}

// Author identifies a conversation participant.
type Author struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// VisibleMessage is a message that carried the client-visibility marker,
// with the marker stripped from the preview.
type VisibleMessage struct {
	ID          string  `json:"id"`
	Subject     string  `json:"subject"`
	Preview     string  `json:"preview"`
	DeliveredAt int64   `json:"deliveredAt"`
	From        *Author `json:"from,omitempty"`
}

// LabelSyncStats reports what one reconciliation run changed.
type LabelSyncStats struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Reactivated int `json:"reactivated"`
	Deactivated int `json:"deactivated"`
	Total       int `json:"total"`
}
