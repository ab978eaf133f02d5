package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/portal-service/internal/model"
)

// RemoteClientLabel is one entry of the client taxonomy as fetched from
// Missive, already filtered to the client namespace and re-keyed by the
// local code (namespace prefix stripped).
type RemoteClientLabel struct {
	Code           string
	Name           string
	MissiveLabelID string
}

// PortalStore is the persistence interface for the portal service.
//
// The client_labels table is mutated exclusively by ReconcileLabels;
// every other method treats it as read-only.
type PortalStore interface {
	// --- Label directory (active rows only unless noted) ---

	GetLabelByCode(ctx context.Context, code string) (*model.ClientLabel, error)
	GetMissiveLabelID(ctx context.Context, code string) (string, error)
	ListLabels(ctx context.Context) ([]model.ClientLabel, error)
	ListCodes(ctx context.Context) ([]string, error)
	// ListAllLabels includes deactivated rows, for admin and audit use.
	ListAllLabels(ctx context.Context) ([]model.ClientLabel, error)
	// CountLabels counts all rows, active or not.
	CountLabels(ctx context.Context) (int64, error)

	// ReconcileLabels applies the remote taxonomy to the local directory
	// inside one transaction: new codes are inserted active, changed ids
	// are updated, previously deactivated codes are reactivated, and
	// active codes absent from the remote set are deactivated. Any
	// failure rolls the whole run back.
	ReconcileLabels(ctx context.Context, remote []RemoteClientLabel) (*model.LabelSyncStats, error)

	// --- Allowed clients ---

	IsClientAllowed(ctx context.Context, email string) (bool, error)
	AddAllowedClient(ctx context.Context, email, name, code string) (*model.AllowedClient, error)
	RemoveAllowedClient(ctx context.Context, email string) error
	// GetClientCode resolves an allowed email to its client code through
	// the active label row. Returns NotFoundError when the email is not
	// allowed or its label has been deactivated.
	GetClientCode(ctx context.Context, email string) (string, error)
	GetClientLabel(ctx context.Context, email string) (*model.ClientLabel, error)

	// --- Magic tokens ---

	CreateMagicToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error
	// ConsumeMagicToken returns the email for an unexpired token hash and
	// deletes the row (single use). Expired or unknown hashes return
	// NotFoundError.
	ConsumeMagicToken(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteExpiredMagicTokens(ctx context.Context, now time.Time) (int64, error)
}

// Loader creates a store from config carried in the context.
type Loader func(ctx context.Context) (PortalStore, error)

// Plugin represents a datastore plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a datastore plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered datastore plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named datastore plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown datastore %q; valid: %v", name, Names())
}
