package grpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/coursekeeper/internal/server/api"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/dmitrijs2005/coursekeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) RequestCode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.RequestCode(ctx, str(in, "phoneNumber"), str(in, "type")))
}

func (s *GRPCServer) VerifyCode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.VerifyCode(ctx, str(in, "phoneNumber"), str(in, "code"), str(in, "type")))
}

func (s *GRPCServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.Register(ctx, services.RegisterInput{
		PhoneNumber: str(in, "phoneNumber"),
		Code:        str(in, "code"),
		Password:    str(in, "password"),
		Role:        models.Role(str(in, "role")),
		Username:    str(in, "username"),
		RealName:    str(in, "realName"),
		Email:       str(in, "email"),
		StudentID:   str(in, "studentId"),
		TeacherID:   str(in, "teacherId"),
		College:     str(in, "college"),
		Major:       str(in, "major"),
		ClassName:   str(in, "className"),
	}))
}

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.Login(ctx, str(in, "phoneNumber"), str(in, "password")))
}

func (s *GRPCServer) LoginByCode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.LoginByCode(ctx, str(in, "phoneNumber"), str(in, "code")))
}

func (s *GRPCServer) ChangePassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.ChangePassword(ctx, auth.SessionFromContext(ctx),
		str(in, "userId"), str(in, "oldPassword"), str(in, "newPassword")))
}

func (s *GRPCServer) ResetPasswordByPhone(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.ResetPasswordByPhone(ctx, str(in, "phoneNumber"), str(in, "code"), str(in, "newPassword")))
}

func (s *GRPCServer) AdminResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.AdminResetPassword(ctx, auth.SessionFromContext(ctx), str(in, "userId"), str(in, "newPassword")))
}

func (s *GRPCServer) GetUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.GetUser(ctx, auth.SessionFromContext(ctx), str(in, "userId")))
}

func (s *GRPCServer) ListUsers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.ListUsers(ctx, auth.SessionFromContext(ctx)))
}

func (s *GRPCServer) UpdateProfile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.UpdateProfile(ctx, auth.SessionFromContext(ctx), api.ProfileUpdate{
		UserID:    str(in, "userId"),
		Username:  str(in, "username"),
		RealName:  str(in, "realName"),
		Email:     str(in, "email"),
		StudentID: str(in, "studentId"),
		TeacherID: str(in, "teacherId"),
		College:   str(in, "college"),
		Major:     str(in, "major"),
		ClassName: str(in, "className"),
	}))
}

func (s *GRPCServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, s.api.Logout(ctx))
}

// reply turns a successful Result into a Struct and anything else into a
// status error with the Result message.
func (s *GRPCServer) reply(ctx context.Context, r *api.Result) (*structpb.Struct, error) {
	if !r.OK() {
		return nil, status.Error(grpcCode(r.Code), r.Message)
	}

	out, err := toStruct(r)
	if err != nil {
		s.logger.Error(ctx, "failed to encode response", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func grpcCode(httpCode int) codes.Code {
	switch httpCode {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusBadGateway:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStruct goes through JSON so the struct carries the same keys as the
// REST responses.
func toStruct(r *api.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}
