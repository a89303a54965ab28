package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so messages match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type sendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Type        string `json:"type" validate:"omitempty,oneof=REGISTER LOGIN RESET_PASSWORD"`
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Type        string `json:"type" validate:"omitempty,oneof=REGISTER LOGIN RESET_PASSWORD"`
}

type registerRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role" validate:"omitempty,oneof=student teacher officer"`
	Username    string `json:"username"`
	RealName    string `json:"realName"`
	Email       string `json:"email" validate:"omitempty,email"`
	StudentID   string `json:"studentId"`
	TeacherID   string `json:"teacherId"`
	College     string `json:"college"`
	Major       string `json:"major"`
	ClassName   string `json:"className"`
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

// a missing code is answered by the boundary as an invalid code
type loginByCodeRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Code        string `json:"code"`
}

type resetPasswordRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type changePasswordRequest struct {
	UserID      string `json:"userId" validate:"required"`
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type adminResetPasswordRequest struct {
	UserID      string `json:"userId"`
	NewPassword string `json:"newPassword"`
}

type updateProfileRequest struct {
	UserID    string `json:"userId" validate:"required"`
	Username  string `json:"username"`
	RealName  string `json:"realName"`
	Email     string `json:"email" validate:"omitempty,email"`
	StudentID string `json:"studentId"`
	TeacherID string `json:"teacherId"`
	College   string `json:"college"`
	Major     string `json:"major"`
	ClassName string `json:"className"`
}

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return errors.New("request body is not valid JSON")
	}
	return validationError(validate.Struct(dst))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}
