package auth

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthorizationKey is the gRPC metadata key carrying the bearer token.
const AuthorizationKey = "authorization"

// Config configures an Interceptor.
type Config struct {
	// Enabled turns on token enforcement. A master or worker started
	// without an auth token leaves this false and accepts any caller.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Token is the token every non-skipped RPC must present.
	Token string `yaml:"token" json:"token"`

	// SkipMethods lists full gRPC method names that bypass the token
	// check even when Enabled is true (health checks, worker
	// registration before it has a token to present).
	SkipMethods []string `yaml:"skip_methods" json:"skip_methods"`
}

// DefaultConfig returns an Interceptor config with auth disabled and only
// the standard health-check method exempt.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		SkipMethods: []string{"/grpc.health.v1.Health/Check"},
	}
}

// Interceptor enforces bearer-token auth on gRPC calls between a
// predictgrid client, a pg-worker, and a pg-master.
type Interceptor struct {
	enabled     bool
	token       string
	skipMethods map[string]bool
}

// NewInterceptor builds an Interceptor from cfg.
func NewInterceptor(cfg Config) *Interceptor {
	skipMethods := make(map[string]bool, len(cfg.SkipMethods))
	for _, m := range cfg.SkipMethods {
		skipMethods[m] = true
	}

	return &Interceptor{
		enabled:     cfg.Enabled,
		token:       cfg.Token,
		skipMethods: skipMethods,
	}
}

// UnaryServerInterceptor validates the bearer token on every unary RPC not
// in SkipMethods.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !i.enabled {
			return handler(ctx, req)
		}

		if i.skipMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		if err := i.validateContext(ctx, info.FullMethod); err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamServerInterceptor validates the bearer token on every streaming RPC
// not in SkipMethods.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !i.enabled {
			return handler(srv, ss)
		}

		if i.skipMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		if err := i.validateContext(ss.Context(), info.FullMethod); err != nil {
			return err
		}

		return handler(srv, ss)
	}
}

// validateContext checks the bearer token carried in ctx's incoming
// metadata against the configured token.
func (i *Interceptor) validateContext(ctx context.Context, method string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		log.Warn().Str("method", method).Msg("auth rejected: no metadata")
		return status.Error(codes.Unauthenticated, "no metadata provided")
	}

	values := md.Get(AuthorizationKey)
	if len(values) == 0 {
		log.Warn().Str("method", method).Msg("auth rejected: no authorization header")
		return status.Error(codes.Unauthenticated, "authorization token required")
	}

	token, ok := ParseBearerToken(values[0])
	if !ok {
		log.Warn().Str("method", method).Msg("auth rejected: malformed bearer header")
		return status.Error(codes.Unauthenticated, "invalid authorization format")
	}

	if !ValidateToken(token, i.token) {
		log.Warn().Str("method", method).Msg("auth rejected: token mismatch")
		return status.Error(codes.Unauthenticated, "invalid token")
	}

	return nil
}

// ContextWithToken attaches token as a bearer authorization header on an
// outgoing context, for a worker or client dialing a master/worker.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, AuthorizationKey, "Bearer "+token)
}

// UnaryClientInterceptor attaches token to every outgoing unary RPC. A
// blank token is a no-op, letting callers share one dial-option slice
// across authenticated and unauthenticated deployments.
func UnaryClientInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if token != "" {
			ctx = ContextWithToken(ctx, token)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor attaches token to every outgoing streaming RPC.
func StreamClientInterceptor(token string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		if token != "" {
			ctx = ContextWithToken(ctx, token)
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}
