package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/dmitrijs2005/coursekeeper/internal/server/services"
	"github.com/dmitrijs2005/coursekeeper/internal/server/verification"
)

// CodeService sends and redeems verification codes.
type CodeService interface {
	Send(ctx context.Context, phone string, purpose models.Purpose) error
	Verify(ctx context.Context, phone, code string, purpose models.Purpose) (bool, error)
}

// UserService is the account side of the boundary.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, phone, password string) (*services.LoginResult, error)
	LoginByCode(ctx context.Context, phone, code string) (*services.LoginResult, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	ResetPasswordByPhone(ctx context.Context, phone, code, newPassword string) error
	AdminResetPassword(ctx context.Context, userID, newPassword string) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) (*models.User, error)
}

// LoginPayload is the public profile plus the session token.
type LoginPayload struct {
	models.Profile
	Token string `json:"token"`
}

// ProfileUpdate carries the editable profile fields of UserID.
type ProfileUpdate struct {
	UserID    string
	Username  string
	RealName  string
	Email     string
	StudentID string
	TeacherID string
	College   string
	Major     string
	ClassName string
}

// API implements every inbound operation on top of the services. Callers
// of protected operations pass the session resolved by the transport; a
// nil session means the request was anonymous.
type API struct {
	codes  CodeService
	users  UserService
	logger logging.Logger
}

// New builds the boundary over the code and user services.
func New(codes CodeService, users UserService, logger logging.Logger) *API {
	return &API{codes: codes, users: users, logger: logger.With("module", "api")}
}

// RequestCode sends a code for purpose, LOGIN when purpose is empty.
func (a *API) RequestCode(ctx context.Context, phone, purpose string) *Result {
	if phone == "" {
		return fail(http.StatusBadRequest, "Phone number is required")
	}
	p, err := verification.ParsePurpose(purpose)
	if err != nil {
		return a.failure(ctx, "request code", err)
	}
	if err := a.codes.Send(ctx, phone, p); err != nil {
		return a.failure(ctx, "request code", err)
	}
	return ok("Verification code sent", nil)
}

// VerifyCode redeems a code outside of any other flow.
func (a *API) VerifyCode(ctx context.Context, phone, code, purpose string) *Result {
	p, err := verification.ParsePurpose(purpose)
	if err != nil {
		return a.failure(ctx, "verify code", err)
	}
	if _, err := a.codes.Verify(ctx, phone, code, p); err != nil {
		return a.failure(ctx, "verify code", err)
	}
	return ok("Verification code accepted", nil)
}

// Register creates an account after redeeming a REGISTER code and returns
// its public profile.
func (a *API) Register(ctx context.Context, in services.RegisterInput) *Result {
	u, err := a.users.Register(ctx, in)
	if err != nil {
		return a.failure(ctx, "register", err)
	}
	return ok("Registration successful", u.Profile())
}

// Login answers 401 for an unknown phone or a wrong password alike.
func (a *API) Login(ctx context.Context, phone, password string) *Result {
	res, err := a.users.Login(ctx, phone, password)
	if err != nil {
		return a.failure(ctx, "login", err)
	}
	return ok("Login successful", loginPayload(res))
}

// LoginByCode answers 401 for a bad or spent code and 404 when the phone
// has no account.
func (a *API) LoginByCode(ctx context.Context, phone, code string) *Result {
	res, err := a.users.LoginByCode(ctx, phone, code)
	if err != nil {
		if errors.Is(err, common.ErrNoValidCode) || errors.Is(err, common.ErrCodeMismatch) {
			return fail(http.StatusUnauthorized, "Verification code is invalid or expired")
		}
		if errors.Is(err, common.ErrorNotFound) {
			return fail(http.StatusNotFound, "Phone number is not registered")
		}
		return a.failure(ctx, "login by code", err)
	}
	return ok("Login successful", loginPayload(res))
}

// ChangePassword lets a user, or an officer on their behalf, change the
// password of userID given the current one.
func (a *API) ChangePassword(ctx context.Context, caller *auth.Session, userID, oldPassword, newPassword string) *Result {
	if err := selfOrOfficer(caller, userID); err != nil {
		return a.failure(ctx, "change password", err)
	}
	if err := a.users.ChangePassword(ctx, userID, oldPassword, newPassword); err != nil {
		return a.failure(ctx, "change password", err)
	}
	return ok("Password updated successfully", nil)
}

// ResetPasswordByPhone sets a new password after redeeming a
// RESET_PASSWORD code. No session is needed.
func (a *API) ResetPasswordByPhone(ctx context.Context, phone, code, newPassword string) *Result {
	if err := a.users.ResetPasswordByPhone(ctx, phone, code, newPassword); err != nil {
		return a.failure(ctx, "reset password", err)
	}
	return ok("Password reset successfully", nil)
}

// AdminResetPassword is reserved for officers.
func (a *API) AdminResetPassword(ctx context.Context, caller *auth.Session, userID, newPassword string) *Result {
	if userID == "" || newPassword == "" {
		return fail(http.StatusBadRequest, "Missing required fields: userId and newPassword")
	}
	if err := officer(caller); err != nil {
		return a.failure(ctx, "admin reset password", err)
	}
	if err := a.users.AdminResetPassword(ctx, userID, newPassword); err != nil {
		return a.failure(ctx, "admin reset password", err)
	}
	return ok("Password reset successfully", nil)
}

// GetUser returns the profile of id to its owner or an officer.
func (a *API) GetUser(ctx context.Context, caller *auth.Session, id string) *Result {
	if err := selfOrOfficer(caller, id); err != nil {
		return a.failure(ctx, "get user", err)
	}
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		return a.failure(ctx, "get user", err)
	}
	return ok("OK", u.Profile())
}

// ListUsers returns every profile. Officers only.
func (a *API) ListUsers(ctx context.Context, caller *auth.Session) *Result {
	if err := officer(caller); err != nil {
		return a.failure(ctx, "list users", err)
	}
	list, err := a.users.ListUsers(ctx)
	if err != nil {
		return a.failure(ctx, "list users", err)
	}
	profiles := make([]models.Profile, 0, len(list))
	for _, u := range list {
		profiles = append(profiles, u.Profile())
	}
	return ok("OK", profiles)
}

// UpdateProfile overwrites the editable fields of in.UserID and returns the
// stored profile. Allowed for the owner or an officer.
func (a *API) UpdateProfile(ctx context.Context, caller *auth.Session, in ProfileUpdate) *Result {
	if err := selfOrOfficer(caller, in.UserID); err != nil {
		return a.failure(ctx, "update profile", err)
	}
	u, err := a.users.UpdateProfile(ctx, &models.User{
		ID:        in.UserID,
		Username:  in.Username,
		RealName:  in.RealName,
		Email:     in.Email,
		StudentID: in.StudentID,
		TeacherID: in.TeacherID,
		College:   in.College,
		Major:     in.Major,
		ClassName: in.ClassName,
	})
	if err != nil {
		return a.failure(ctx, "update profile", err)
	}
	return ok("User updated successfully", u.Profile())
}

// Logout is a no-op: sessions are stateless and the client drops the token.
func (a *API) Logout(context.Context) *Result {
	return ok("Logout successful", nil)
}

func (a *API) failure(ctx context.Context, op string, err error) *Result {
	r := failure(err)
	if r.Code >= http.StatusInternalServerError {
		a.logger.Error(ctx, "operation failed", "op", op, "error", err)
	} else {
		a.logger.Debug(ctx, "operation rejected", "op", op, "code", r.Code, "reason", r.Message)
	}
	return r
}

func loginPayload(res *services.LoginResult) LoginPayload {
	return LoginPayload{Profile: res.User.Profile(), Token: res.Token}
}

func officer(caller *auth.Session) error {
	if caller == nil {
		return common.ErrorUnauthorized
	}
	if caller.Role != models.RoleOfficer {
		return common.ErrorForbidden
	}
	return nil
}

func selfOrOfficer(caller *auth.Session, userID string) error {
	if caller == nil {
		return common.ErrorUnauthorized
	}
	if caller.UserID != userID && caller.Role != models.RoleOfficer {
		return common.ErrorForbidden
	}
	return nil
}
