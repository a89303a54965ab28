package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/coursekeeper/internal/server/api"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/dmitrijs2005/coursekeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func badRequest(w http.ResponseWriter, err error) {
	writeResult(w, &api.Result{Code: http.StatusBadRequest, Message: "Invalid request: " + err.Error()})
}

func (s *HTTPServer) sendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeResult(w, s.api.RequestCode(r.Context(), req.PhoneNumber, req.Type))
}

func (s *HTTPServer) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeResult(w, s.api.VerifyCode(r.Context(), req.PhoneNumber, req.Code, req.Type))
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeResult(w, s.api.Register(r.Context(), services.RegisterInput{
		PhoneNumber: req.PhoneNumber,
		Code:        req.Code,
		Password:    req.Password,
		Role:        models.Role(req.Role),
		Username:    req.Username,
		RealName:    req.RealName,
		Email:       req.Email,
		StudentID:   req.StudentID,
		TeacherID:   req.TeacherID,
		College:     req.College,
		Major:       req.Major,
		ClassName:   req.ClassName,
	}))
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeResult(w, s.api.Login(r.Context(), req.PhoneNumber, req.Password))
}

func (s *HTTPServer) loginByCode(w http.ResponseWriter, r *http.Request) {
	var req loginByCodeRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeResult(w, s.api.LoginByCode(r.Context(), req.PhoneNumber, req.Code))
}

func (s *HTTPServer) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	writeResult(w, s.api.ResetPasswordByPhone(r.Context(), req.PhoneNumber, req.Code, req.NewPassword))
}

func (s *HTTPServer) logout(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.api.Logout(r.Context()))
}

func (s *HTTPServer) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ctx := r.Context()
	writeResult(w, s.api.ChangePassword(ctx, auth.SessionFromContext(ctx), req.UserID, req.OldPassword, req.NewPassword))
}

func (s *HTTPServer) adminResetPassword(w http.ResponseWriter, r *http.Request) {
	var req adminResetPasswordRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ctx := r.Context()
	writeResult(w, s.api.AdminResetPassword(ctx, auth.SessionFromContext(ctx), req.UserID, req.NewPassword))
}

func (s *HTTPServer) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	ctx := r.Context()
	writeResult(w, s.api.UpdateProfile(ctx, auth.SessionFromContext(ctx), api.ProfileUpdate{
		UserID:    req.UserID,
		Username:  req.Username,
		RealName:  req.RealName,
		Email:     req.Email,
		StudentID: req.StudentID,
		TeacherID: req.TeacherID,
		College:   req.College,
		Major:     req.Major,
		ClassName: req.ClassName,
	}))
}

func (s *HTTPServer) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeResult(w, s.api.GetUser(ctx, auth.SessionFromContext(ctx), chi.URLParam(r, "id")))
}

func (s *HTTPServer) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeResult(w, s.api.ListUsers(ctx, auth.SessionFromContext(ctx)))
}
