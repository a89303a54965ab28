package grpc

import (
	"context"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protected lists the methods that need a valid session.
var protected = map[string]bool{
	FullMethod(MethodChangePassword):     true,
	FullMethod(MethodAdminResetPassword): true,
	FullMethod(MethodGetUser):            true,
	FullMethod(MethodListUsers):          true,
	FullMethod(MethodUpdateProfile):      true,
}

// accessTokenInterceptor resolves the session for protected methods from
// the access_token metadata key, or a bearer Authorization value.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if protected[info.FullMethod] {

		accessToken := tokenFromMetadata(ctx)
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		session, err := s.issuer.Validate(accessToken)
		if err != nil {
			s.logger.Debug(ctx, "rejected token", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unauthenticated, auth.TokenErrorMessage(err))
		}

		ctx = auth.WithSession(ctx, session)

	}

	return handler(ctx, req)
}

func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 && values[0] != "" {
		return values[0]
	}
	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		return auth.BearerToken(values[0])
	}
	return ""
}
