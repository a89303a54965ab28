package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/dbx"
	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/dmitrijs2005/coursekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/coursekeeper/internal/server/sms"
	"github.com/dmitrijs2005/coursekeeper/internal/server/verification"
)

// VerificationService owns the lifecycle of verification codes: it
// generates, stores and dispatches them, and redeems them at most once.
//
// The newest code per (phone, purpose) is authoritative. Sending a new code
// does not invalidate older ones; they simply stop being the newest.
type VerificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	provider    sms.Provider
	policy      verification.Policy
	logger      logging.Logger
	now         func() time.Time
}

// NewVerificationService wires the service with the default 5 minute / 60
// second policy.
func NewVerificationService(db *sql.DB, m repomanager.RepositoryManager, provider sms.Provider, logger logging.Logger) *VerificationService {
	return &VerificationService{
		db:          db,
		repomanager: m,
		provider:    provider,
		policy:      verification.DefaultPolicy(),
		logger:      logger.With("module", "verification"),
		now:         time.Now,
	}
}

// Send issues a new code for (phone, purpose) and hands it to the SMS
// provider. When dispatch fails the stored record is deleted again so it
// can never be redeemed, and ErrDeliveryFailure is returned.
func (s *VerificationService) Send(ctx context.Context, phone string, purpose models.Purpose) error {
	if err := verification.ValidatePhone(phone); err != nil {
		return err
	}
	if !purpose.Valid() {
		return common.ErrInvalidPurpose
	}

	repo := s.repomanager.Codes(s.db)
	now := s.now()

	latest, err := repo.FindLatestAny(ctx, phone, purpose)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if s.policy.IsRateLimited(latest, now) {
		s.logger.Warn(ctx, "code requested too often", "phone", phone, "purpose", purpose)
		return common.ErrRateLimited
	}

	code, err := verification.GenerateCode()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	record, err := repo.Insert(ctx, &models.VerificationCode{
		PhoneNumber: phone,
		Code:        code,
		Purpose:     purpose,
		CreatedAt:   now,
		ExpiresAt:   s.policy.ExpiresAt(now),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	if !s.provider.SendVerificationCode(ctx, phone, code) {
		s.logger.Error(ctx, "failed to send sms", "phone", phone, "purpose", purpose, "provider", s.provider.Name())
		if err := repo.Delete(ctx, record.ID); err != nil {
			s.logger.Error(ctx, "failed to roll back undelivered code", "id", record.ID, "error", err)
		}
		return common.ErrDeliveryFailure
	}

	s.logger.Info(ctx, "verification code sent", "phone", phone, "purpose", purpose, "provider", s.provider.Name())
	return nil
}

// Verify redeems code for (phone, purpose) against the default connection.
func (s *VerificationService) Verify(ctx context.Context, phone, code string, purpose models.Purpose) (bool, error) {
	return s.VerifyWith(ctx, s.db, phone, code, purpose)
}

// VerifyWith redeems code using db, so callers can consume the code in the
// same transaction as the work it authorizes.
//
// A code of the wrong shape is rejected before any storage access. Only
// the newest valid record is consulted; on an exact match it is marked used
// and true is returned. Failed attempts change nothing.
func (s *VerificationService) VerifyWith(ctx context.Context, db dbx.DBTX, phone, code string, purpose models.Purpose) (bool, error) {
	if err := verification.ValidateCode(code); err != nil {
		return false, err
	}
	if err := verification.ValidatePhone(phone); err != nil {
		return false, err
	}
	if !purpose.Valid() {
		return false, common.ErrInvalidPurpose
	}

	repo := s.repomanager.Codes(db)
	now := s.now()

	record, err := repo.FindLatestValid(ctx, phone, purpose, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "no valid verification code", "phone", phone, "purpose", purpose)
			return false, common.ErrNoValidCode
		}
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	// the row may have been spent or expired between the query and now
	if !record.IsValid(now) {
		s.logger.Warn(ctx, "stale verification code", "phone", phone, "purpose", purpose, "id", record.ID)
		return false, common.ErrNoValidCode
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		s.logger.Warn(ctx, "invalid verification code", "phone", phone, "purpose", purpose)
		return false, common.ErrCodeMismatch
	}

	if err := repo.MarkUsed(ctx, record.ID); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	s.logger.Info(ctx, "verification code verified", "phone", phone, "purpose", purpose)
	return true, nil
}

// PurgeExpired deletes every code that has expired by now and returns the
// number of removed rows.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Codes(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return n, nil
}
