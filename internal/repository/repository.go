// Package repository declares the persistence interfaces the services
// depend on. Implementations live in subpackages.
package repository

import (
	"context"

	"github.com/sakif/jacobs-ranch/internal/model"
)

// UserRepository stores the accounts of the local auth provider.
type UserRepository interface {
	// Create assigns an ID and timestamps. A taken email is a Conflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateEmail(ctx context.Context, id, email string) error
	MarkVerified(ctx context.Context, id string) error
}
