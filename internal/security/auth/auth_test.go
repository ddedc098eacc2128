package auth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/predictgrid/predictgrid/internal/servingerr"
)

const workerToken = "w0rker-t0ken-1234567890abcdef1234"

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		provided string
		expected string
		want     bool
	}{
		{
			name:     "matching worker tokens",
			provided: workerToken,
			expected: workerToken,
			want:     true,
		},
		{
			name:     "impostor worker token",
			provided: workerToken,
			expected: "00000000000000000000000000000000",
			want:     false,
		},
		{
			name:     "provided too short",
			provided: "short",
			expected: workerToken,
			want:     false,
		},
		{
			name:     "expected too short",
			provided: workerToken,
			expected: "short",
			want:     false,
		},
		{
			name:     "both empty",
			provided: "",
			expected: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateToken(tt.provided, tt.expected); got != tt.want {
				t.Errorf("ValidateToken() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if len(token) != DefaultTokenLength {
		t.Errorf("Token length = %d, want %d", len(token), DefaultTokenLength)
	}

	token2, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if token == token2 {
		t.Error("two generated master tokens should never collide")
	}
}

func TestGenerateTokenWithLength(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"valid 32", 32, false},
		{"valid 64", 64, false},
		{"valid 128", 128, false},
		{"too short", 16, true},
		{"minimum", MinTokenLength, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateTokenWithLength(tt.length)
			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateTokenWithLength() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(token) != tt.length {
				t.Errorf("Token length = %d, want %d", len(token), tt.length)
			}
		})
	}
}

func TestGenerateTokenWithLength_ErrorKind(t *testing.T) {
	_, err := GenerateTokenWithLength(8)
	if err == nil {
		t.Fatal("expected an error for a too-short token length")
	}
	st, ok := err.(*servingerr.Status)
	if !ok {
		t.Fatalf("error = %T, want *servingerr.Status", err)
	}
	if st.Kind != servingerr.KindInvalidInputs {
		t.Errorf("Kind = %v, want KindInvalidInputs", st.Kind)
	}
}

func TestParseBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		auth      string
		wantToken string
		wantOK    bool
	}{
		{
			name:      "valid bearer",
			auth:      "Bearer " + workerToken,
			wantToken: workerToken,
			wantOK:    true,
		},
		{
			name:      "missing prefix",
			auth:      workerToken,
			wantToken: "",
			wantOK:    false,
		},
		{
			name:      "wrong prefix",
			auth:      "Basic " + workerToken,
			wantToken: "",
			wantOK:    false,
		},
		{
			name:      "empty token",
			auth:      "Bearer ",
			wantToken: "",
			wantOK:    false,
		},
		{
			name:      "empty string",
			auth:      "",
			wantToken: "",
			wantOK:    false,
		},
		{
			name:      "just bearer",
			auth:      "Bearer",
			wantToken: "",
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := ParseBearerToken(tt.auth)
			if ok != tt.wantOK {
				t.Errorf("ParseBearerToken() ok = %v, want %v", ok, tt.wantOK)
			}
			if token != tt.wantToken {
				t.Errorf("ParseBearerToken() token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestInterceptor_Disabled(t *testing.T) {
	cfg := Config{
		Enabled: false,
		Token:   workerToken,
	}
	interceptor := NewInterceptor(cfg)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	result, err := interceptor.UnaryServerInterceptor()(
		context.Background(),
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/predictgrid.v1.MasterService/Register"},
		handler,
	)

	if err != nil {
		t.Errorf("disabled interceptor returned error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Result = %v, want 'ok'", result)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Token:   workerToken,
	}
	interceptor := NewInterceptor(cfg)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	_, err := interceptor.UnaryServerInterceptor()(
		context.Background(),
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/predictgrid.v1.MasterService/Register"},
		handler,
	)

	if err == nil {
		t.Error("expected error for a worker registering with no token")
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Error code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestInterceptor_InvalidToken(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Token:   workerToken,
	}
	interceptor := NewInterceptor(cfg)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	md := metadata.New(map[string]string{
		AuthorizationKey: "Bearer wrong0000000000000000000000000",
	})
	ctx := metadata.NewIncomingContext(context.Background(), md)

	_, err := interceptor.UnaryServerInterceptor()(
		ctx,
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/predictgrid.v1.MasterService/Register"},
		handler,
	)

	if err == nil {
		t.Error("expected error for a worker presenting the wrong token")
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Error code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestInterceptor_ValidToken(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Token:   workerToken,
	}
	interceptor := NewInterceptor(cfg)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	md := metadata.New(map[string]string{
		AuthorizationKey: "Bearer " + workerToken,
	})
	ctx := metadata.NewIncomingContext(context.Background(), md)

	result, err := interceptor.UnaryServerInterceptor()(
		ctx,
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/predictgrid.v1.MasterService/Register"},
		handler,
	)

	if err != nil {
		t.Errorf("valid token returned error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Result = %v, want 'ok'", result)
	}
}

func TestInterceptor_SkipMethods(t *testing.T) {
	cfg := Config{
		Enabled:     true,
		Token:       workerToken,
		SkipMethods: []string{"/predictgrid.v1.PredictService/Predict"},
	}
	interceptor := NewInterceptor(cfg)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	result, err := interceptor.UnaryServerInterceptor()(
		context.Background(),
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/predictgrid.v1.PredictService/Predict"},
		handler,
	)

	if err != nil {
		t.Errorf("skipped method returned error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Result = %v, want 'ok'", result)
	}
}

func TestContextWithToken(t *testing.T) {
	ctx := ContextWithToken(context.Background(), workerToken)

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("no outgoing metadata")
	}

	values := md.Get(AuthorizationKey)
	if len(values) == 0 {
		t.Fatal("no authorization header")
	}

	expected := "Bearer " + workerToken
	if values[0] != expected {
		t.Errorf("Authorization = %q, want %q", values[0], expected)
	}
}

// mockServerStream lets a stream interceptor test swap in an arbitrary
// incoming context without a real gRPC transport.
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func TestStreamInterceptor_ValidToken(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Token:   workerToken,
	}
	interceptor := NewInterceptor(cfg)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return nil
	}

	md := metadata.New(map[string]string{
		AuthorizationKey: "Bearer " + workerToken,
	})
	ctx := metadata.NewIncomingContext(context.Background(), md)

	err := interceptor.StreamServerInterceptor()(
		nil,
		&mockServerStream{ctx: ctx},
		&grpc.StreamServerInfo{FullMethod: "/predictgrid.v1.PredictService/StreamPredict"},
		handler,
	)

	if err != nil {
		t.Errorf("valid token returned error: %v", err)
	}
}

func TestStreamInterceptor_InvalidToken(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Token:   workerToken,
	}
	interceptor := NewInterceptor(cfg)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return nil
	}

	err := interceptor.StreamServerInterceptor()(
		nil,
		&mockServerStream{ctx: context.Background()},
		&grpc.StreamServerInfo{FullMethod: "/predictgrid.v1.PredictService/StreamPredict"},
		handler,
	)

	if err == nil {
		t.Error("expected error for missing token")
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Error code = %v, want Unauthenticated", status.Code(err))
	}
}
