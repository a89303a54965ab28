// Package services contains server-side business logic: the verification
// code orchestrator and the user/credential flows built on top of it.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/dbx"
	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/dmitrijs2005/coursekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/coursekeeper/internal/server/verification"
	"github.com/google/uuid"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

// checkPassword is a seam so tests can observe comparisons.
var checkPassword = auth.CheckPassword

// dummyHash is compared against when the phone is unknown so both login
// failures cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword(uuid.NewString())
	if err != nil {
		return ""
	}
	return h
})

// CodeVerifier redeems a verification code through db.
type CodeVerifier interface {
	VerifyWith(ctx context.Context, db dbx.DBTX, phone, code string, purpose models.Purpose) (bool, error)
}

// RegisterInput is everything needed to create an account.
type RegisterInput struct {
	PhoneNumber string
	Code        string
	Password    string
	Role        models.Role
	Username    string
	RealName    string
	Email       string
	StudentID   string
	TeacherID   string
	College     string
	Major       string
	ClassName   string
}

// LoginResult is a freshly minted session for User.
type LoginResult struct {
	User  *models.User
	Token string
}

// UserService implements registration, both login flavours and the
// password flows. It is the only caller that hashes or compares passwords.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codes       CodeVerifier
	issuer      *auth.Issuer
	logger      logging.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, codes CodeVerifier, issuer *auth.Issuer, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		codes:       codes,
		issuer:      issuer,
		logger:      logger.With("module", "users"),
	}
}

// Register creates an account after redeeming a REGISTER code. The code is
// consumed in the same transaction as the insert, so a failed insert leaves
// it redeemable. Officers cannot self-register.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := verification.ValidatePhone(in.PhoneNumber); err != nil {
		return nil, err
	}
	if err := verification.ValidateCode(in.Code); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = models.RoleStudent
	}
	if !role.Valid() {
		return nil, common.ErrInvalidRole
	}
	if role == models.RoleOfficer {
		return nil, common.ErrorForbidden
	}

	if _, err := s.repomanager.Users(s.db).GetByPhone(ctx, in.PhoneNumber); err == nil {
		return nil, common.ErrAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: hash,
		Role:         role,
		Username:     in.Username,
		RealName:     in.RealName,
		Email:        in.Email,
		StudentID:    in.StudentID,
		TeacherID:    in.TeacherID,
		College:      in.College,
		Major:        in.Major,
		ClassName:    in.ClassName,
	}

	var created *models.User
	err = s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.codes.VerifyWith(ctx, tx, in.PhoneNumber, in.Code, models.PurposeRegister); err != nil {
			return err
		}
		u, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return storageErr(err)
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// CreateUser stores a user without a verification code. Used by operator
// tooling to bootstrap officer accounts.
func (s *UserService) CreateUser(ctx context.Context, phone, password string, role models.Role, realName string) (*models.User, error) {
	if err := verification.ValidatePhone(phone); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, common.ErrInvalidRole
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		ID:           uuid.NewString(),
		PhoneNumber:  phone,
		PasswordHash: hash,
		Role:         role,
		RealName:     realName,
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

// Login checks phone and password and mints a session token. An unknown
// phone and a wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, phone, password string) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			checkPassword(dummyHash(), password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		s.logger.Warn(ctx, "password mismatch", "user_id", user.ID)
		return nil, common.ErrInvalidCredentials
	}

	return s.session(ctx, user)
}

// LoginByCode redeems a LOGIN code and mints a session token. If no account
// owns phone, the code is left unused and common.ErrorNotFound is returned.
func (s *UserService) LoginByCode(ctx context.Context, phone, code string) (*LoginResult, error) {
	var user *models.User
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.codes.VerifyWith(ctx, tx, phone, code, models.PurposeLogin); err != nil {
			return err
		}
		u, err := s.repomanager.Users(tx).GetByPhone(ctx, phone)
		if err != nil {
			return storageErr(err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.session(ctx, user)
}

// ChangePassword replaces the password of userID after re-checking the
// old one.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return storageErr(err)
	}

	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return common.ErrInvalidCredentials
	}

	return s.setPassword(ctx, repo, user.ID, newPassword)
}

// ResetPasswordByPhone redeems a RESET_PASSWORD code and sets a new
// password for the account owning phone, all in one transaction.
func (s *UserService) ResetPasswordByPhone(ctx context.Context, phone, code, newPassword string) error {
	if err := verification.ValidateCode(code); err != nil {
		return err
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.codes.VerifyWith(ctx, tx, phone, code, models.PurposeResetPassword); err != nil {
			return err
		}
		repo := s.repomanager.Users(tx)
		user, err := repo.GetByPhone(ctx, phone)
		if err != nil {
			return storageErr(err)
		}
		return s.setPassword(ctx, repo, user.ID, newPassword)
	})
}

// AdminResetPassword sets a new password without the old one. Callers must
// have checked that the actor is allowed to do this.
func (s *UserService) AdminResetPassword(ctx context.Context, userID, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return storageErr(err)
	}

	if err := s.setPassword(ctx, repo, user.ID, newPassword); err != nil {
		return err
	}
	s.logger.Info(ctx, "password reset by administrator", "user_id", user.ID)
	return nil
}

// GetUser returns the user with id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

// ListUsers returns every user.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	list, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return list, nil
}

// UpdateProfile rewrites the profile fields of user.ID and returns the
// stored result. Phone number, role and password are not touched.
func (s *UserService) UpdateProfile(ctx context.Context, user *models.User) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	if err := repo.UpdateProfile(ctx, user); err != nil {
		return nil, storageErr(err)
	}
	u, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

func (s *UserService) session(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	s.logger.Info(ctx, "session issued", "user_id", user.ID, "role", user.Role)
	return &LoginResult{User: user, Token: token}, nil
}

type passwordSetter interface {
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}

func (s *UserService) setPassword(ctx context.Context, repo passwordSetter, userID, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if err := repo.UpdatePassword(ctx, userID, hash); err != nil {
		return storageErr(err)
	}
	return nil
}

// withTx runs fn in a transaction. Errors from fn come back untouched;
// failing to begin or commit is a storage error.
func (s *UserService) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fnErr = fn(ctx, tx)
		return fnErr
	})
	if err != nil && fnErr == nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return err
}

func validatePassword(p string) error {
	if len(p) < minPasswordLength || len(p) > maxPasswordLength {
		return common.ErrInvalidPassword
	}
	return nil
}

// storageErr keeps the repository sentinels callers branch on and folds
// everything else into common.ErrStorage.
func storageErr(err error) error {
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrAlreadyExists) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrStorage, err)
}
