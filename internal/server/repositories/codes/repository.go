package codes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
)

// Repository persists one-time verification codes. Validity is always
// derived from used and expires_at, never from the absence of rows.
type Repository interface {
	Insert(ctx context.Context, code *models.VerificationCode) (*models.VerificationCode, error)
	FindLatestValid(ctx context.Context, phone string, purpose models.Purpose, now time.Time) (*models.VerificationCode, error)
	FindLatestAny(ctx context.Context, phone string, purpose models.Purpose) (*models.VerificationCode, error)
	MarkUsed(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
