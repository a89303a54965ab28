package users

import (
	"context"

	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
)

// Repository is the credential store. It is the only component that reads
// or writes password hashes.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}
