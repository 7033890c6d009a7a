// Package storage defines the persistence contracts of the peek service.
//
// Store keeps profiles, push subscriptions and credentials; backends live in the
// sqlite, mongo and memory sub-packages. Screenshots keeps screenshot binaries;
// backends live in disk and minio.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/sensus/peek/internal/models"
)

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("not found")
)

// Profiles is get/put by user id. SaveProfile is an upsert.
type Profiles interface {
	Profile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
}

// Subscriptions keeps push subscriptions. ReplaceSubscription drops every previous
// subscription of the user before storing the new one.
type Subscriptions interface {
	Subscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
	ReplaceSubscription(ctx context.Context, sub *models.PushSubscription) error
}

type Credentials interface {
	Credentials(ctx context.Context, userID string) (*models.Credentials, error)
	SaveCredentials(ctx context.Context, creds *models.Credentials) error
}

// Store is the full persistence contract.
type Store interface {
	Profiles
	Subscriptions
	Credentials
	// DeleteUser removes the profile, its subscriptions and its credentials.
	// It returns ErrNotFound when no profile exists.
	DeleteUser(ctx context.Context, userID string) error
	Close(ctx context.Context) error
}

// Screenshots stores screenshot binaries under user-scoped names. The returned ref is
// what the profile records.
type Screenshots interface {
	Put(ctx context.Context, userID string, data []byte, contentType string) (ref string, err error)
	// Open returns ErrNotFound when the artifact is missing.
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
	// Remove is a no-op for missing artifacts.
	Remove(ctx context.Context, ref string) error
}

// ExtensionFor maps a screenshot content type to a file extension.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// ContentTypeFor is the inverse of ExtensionFor.
func ContentTypeFor(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
