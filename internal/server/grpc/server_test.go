package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/api"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	"github.com/dmitrijs2005/coursekeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// --- fakes ---

type fakeCodes struct {
	sendErr error
	sent    []string
}

func (f *fakeCodes) Send(_ context.Context, phone string, _ models.Purpose) error {
	f.sent = append(f.sent, phone)
	return f.sendErr
}

func (f *fakeCodes) Verify(context.Context, string, string, models.Purpose) (bool, error) {
	return true, nil
}

type fakeUsers struct {
	user   *models.User
	token  string
	err    error
	lastID string
}

func (f *fakeUsers) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u := *f.user
	u.PhoneNumber = in.PhoneNumber
	return &u, nil
}
func (f *fakeUsers) Login(context.Context, string, string) (*services.LoginResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.LoginResult{User: f.user, Token: f.token}, nil
}
func (f *fakeUsers) LoginByCode(ctx context.Context, phone, _ string) (*services.LoginResult, error) {
	return f.Login(ctx, phone, "")
}
func (f *fakeUsers) ChangePassword(_ context.Context, id, _, _ string) error {
	f.lastID = id
	return f.err
}
func (f *fakeUsers) ResetPasswordByPhone(context.Context, string, string, string) error { return f.err }
func (f *fakeUsers) AdminResetPassword(_ context.Context, id, _ string) error {
	f.lastID = id
	return f.err
}
func (f *fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}
func (f *fakeUsers) ListUsers(context.Context) ([]*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*models.User{f.user}, nil
}
func (f *fakeUsers) UpdateProfile(_ context.Context, u *models.User) (*models.User, error) {
	f.lastID = u.ID
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

// --- harness ---

const bufSize = 1024 * 1024

type harness struct {
	client *Client
	codes  *fakeCodes
	users  *fakeUsers
	issuer *auth.Issuer
}

func startServer(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		codes:  &fakeCodes{},
		users:  &fakeUsers{user: &models.User{ID: "u1", PhoneNumber: "13800001111", Role: models.RoleStudent}, token: "tok"},
		issuer: auth.NewIssuer([]byte("secret"), time.Hour),
	}
	boundary := api.New(h.codes, h.users, logging.Discard())
	srv := NewGRPCServer("bufnet", logging.Discard(), boundary, h.issuer)

	lis := bufconn.Listen(bufSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})

	h.client = NewClient(conn)
	return h
}

func (h *harness) token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := h.issuer.Issue(userID, role)
	require.NoError(t, err)
	return tok
}

func withToken(tok string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)
}

// --- tests ---

func TestRequestCode_OK(t *testing.T) {
	h := startServer(t)

	out, err := h.client.Call(context.Background(), MethodRequestCode, map[string]any{"phoneNumber": "13800001111", "type": "REGISTER"})
	require.NoError(t, err)
	assert.Equal(t, float64(200), out.GetFields()["code"].GetNumberValue())
	assert.Equal(t, []string{"13800001111"}, h.codes.sent)
}

func TestRequestCode_ErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrRateLimited, codes.ResourceExhausted},
		{common.ErrInvalidPhone, codes.InvalidArgument},
		{common.ErrDeliveryFailure, codes.Unavailable},
		{common.ErrStorage, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := startServer(t)
			h.codes.sendErr = tt.err

			_, err := h.client.Call(context.Background(), MethodRequestCode, map[string]any{"phoneNumber": "13800001111"})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestLogin_ReturnsProfileAndToken(t *testing.T) {
	h := startServer(t)

	out, err := h.client.Call(context.Background(), MethodLogin, map[string]any{"phoneNumber": "13800001111", "password": "secret1"})
	require.NoError(t, err)

	data := out.GetFields()["data"].GetStructValue().GetFields()
	assert.Equal(t, "u1", data["userId"].GetStringValue())
	assert.Equal(t, "tok", data["token"].GetStringValue())
	_, hasHash := data["passwordHash"]
	assert.False(t, hasHash)
}

func TestLogin_BadCredentials(t *testing.T) {
	h := startServer(t)
	h.users.err = common.ErrInvalidCredentials

	_, err := h.client.Call(context.Background(), MethodLogin, map[string]any{"phoneNumber": "13800001111", "password": "x"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestProtectedMethods_RequireToken(t *testing.T) {
	h := startServer(t)

	for _, m := range []string{MethodGetUser, MethodListUsers, MethodChangePassword, MethodAdminResetPassword, MethodUpdateProfile} {
		t.Run(m, func(t *testing.T) {
			_, err := h.client.Call(context.Background(), m, map[string]any{"userId": "u1"})
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}

func TestProtectedMethods_RejectBadTokens(t *testing.T) {
	h := startServer(t)

	other := auth.NewIssuer([]byte("other-secret"), time.Hour)
	forged, err := other.Issue("u1", models.RoleOfficer)
	require.NoError(t, err)

	for name, tok := range map[string]string{"forged": forged, "garbage": "not-a-jwt"} {
		t.Run(name, func(t *testing.T) {
			_, err := h.client.Call(withToken(tok), MethodGetUser, map[string]any{"userId": "u1"})
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
			assert.Empty(t, h.users.lastID)
		})
	}
}

func TestGetUser_SelfAndForbidden(t *testing.T) {
	h := startServer(t)

	out, err := h.client.Call(withToken(h.token(t, "u1", models.RoleStudent)), MethodGetUser, map[string]any{"userId": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", out.GetFields()["data"].GetStructValue().GetFields()["userId"].GetStringValue())

	_, err = h.client.Call(withToken(h.token(t, "u2", models.RoleStudent)), MethodGetUser, map[string]any{"userId": "u1"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestBearerMetadataAccepted(t *testing.T) {
	h := startServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+h.token(t, "o1", models.RoleOfficer))

	out, err := h.client.Call(ctx, MethodListUsers, nil)
	require.NoError(t, err)
	assert.Len(t, out.GetFields()["data"].GetListValue().GetValues(), 1)
}

func TestAdminResetPassword_OfficerOnly(t *testing.T) {
	h := startServer(t)
	in := map[string]any{"userId": "u1", "newPassword": "fromadmin"}

	_, err := h.client.Call(withToken(h.token(t, "u1", models.RoleStudent)), MethodAdminResetPassword, in)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.client.Call(withToken(h.token(t, "o1", models.RoleOfficer)), MethodAdminResetPassword, in)
	require.NoError(t, err)
	assert.Equal(t, "u1", h.users.lastID)
}

func TestLogout_NoToken(t *testing.T) {
	h := startServer(t)
	out, err := h.client.Call(context.Background(), MethodLogout, nil)
	require.NoError(t, err)
	assert.Equal(t, "Logout successful", out.GetFields()["message"].GetStringValue())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Discard(), nil, auth.NewIssuer([]byte("secret"), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Discard(), nil, nil)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, grpcCode(400))
	assert.Equal(t, codes.Unauthenticated, grpcCode(401))
	assert.Equal(t, codes.PermissionDenied, grpcCode(403))
	assert.Equal(t, codes.NotFound, grpcCode(404))
	assert.Equal(t, codes.ResourceExhausted, grpcCode(429))
	assert.Equal(t, codes.Internal, grpcCode(500))
	assert.Equal(t, codes.Unavailable, grpcCode(502))
}
