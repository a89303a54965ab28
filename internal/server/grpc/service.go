package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "coursekeeper.v1.IdentityService"

// Every method takes and returns a google.protobuf.Struct (see
// internal/proto/coursekeeper/v1/identity.proto): requests use the
// same camelCase keys as the REST gateway, responses are the api.Result
// envelope {code, message, data}.
const (
	MethodRequestCode          = "RequestCode"
	MethodVerifyCode           = "VerifyCode"
	MethodRegister             = "Register"
	MethodLogin                = "Login"
	MethodLoginByCode          = "LoginByCode"
	MethodChangePassword       = "ChangePassword"
	MethodResetPasswordByPhone = "ResetPasswordByPhone"
	MethodAdminResetPassword   = "AdminResetPassword"
	MethodGetUser              = "GetUser"
	MethodListUsers            = "ListUsers"
	MethodUpdateProfile        = "UpdateProfile"
	MethodLogout               = "Logout"
)

// FullMethod returns "/<ServiceName>/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// IdentityServiceServer is implemented by GRPCServer.
type IdentityServiceServer interface {
	RequestCode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyCode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoginByCode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetPasswordByPhone(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdminResetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(IdentityServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IdentityServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IdentityServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// IdentityServiceDesc describes the service for grpc.Server.RegisterService.
var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRequestCode, IdentityServiceServer.RequestCode),
		unary(MethodVerifyCode, IdentityServiceServer.VerifyCode),
		unary(MethodRegister, IdentityServiceServer.Register),
		unary(MethodLogin, IdentityServiceServer.Login),
		unary(MethodLoginByCode, IdentityServiceServer.LoginByCode),
		unary(MethodChangePassword, IdentityServiceServer.ChangePassword),
		unary(MethodResetPasswordByPhone, IdentityServiceServer.ResetPasswordByPhone),
		unary(MethodAdminResetPassword, IdentityServiceServer.AdminResetPassword),
		unary(MethodGetUser, IdentityServiceServer.GetUser),
		unary(MethodListUsers, IdentityServiceServer.ListUsers),
		unary(MethodUpdateProfile, IdentityServiceServer.UpdateProfile),
		unary(MethodLogout, IdentityServiceServer.Logout),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coursekeeper/v1/identity.proto",
}

// Client is a thin caller for IdentityService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with fields as the request body.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
