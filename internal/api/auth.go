package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"rentbook/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	userIDHeaderDefault   = "x-user-id"
	requestIDHeader       = "x-request-id"
	idempotencyKeyHeader  = "Idempotency-Key"
	clientKeyUnknown      = "unknown"
	healthMethodPrefix    = "/grpc.health.v1.Health/"

	permWriteReservations = "write:reservations"
	permCheckReservations = "check:reservations"
	permReadCalendar      = "read:calendar"
	permExport            = "export:reservations"
)

var (
	errMissingAPIKey     = errors.New("missing api key headers")
	errInvalidAPIKey     = errors.New("invalid api key")
	errInvalidExtra      = errors.New("invalid extra header")
	errPermissionDenied  = errors.New("permission denied")
	errRateLimitExceeded = errors.New("rate limit exceeded")
)

// Authenticator checks API keys and permissions and applies per-client rate limits.
// It is shared by the HTTP and gRPC transports.
type Authenticator struct {
	cfg          *config.APIConfig
	clients      map[string]config.APIClientKey
	limiter      *rateLimiter
	apiKeyHeader string
	extraHeader  string
	userIDHeader string
}

func NewAuthenticator(cfg *config.APIConfig) *Authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &Authenticator{
		cfg:          cfg,
		clients:      m,
		limiter:      newRateLimiter(cfg.RateLimit),
		apiKeyHeader: headerName(cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader:  headerName(cfg.Auth.HeaderExtra, apiExtraHeaderDefault),
		userIDHeader: headerName(cfg.Auth.HeaderUserID, userIDHeaderDefault),
	}
}

func headerName(configured, fallback string) string {
	h := strings.ToLower(strings.TrimSpace(configured))
	if h == "" {
		return fallback
	}
	return h
}

// Check validates the client credentials for an operation that requires permission.
// With auth disabled every caller is accepted.
func (a *Authenticator) Check(apiKey, extra, permission string) error {
	if !a.cfg.Auth.Enabled {
		return nil
	}
	if apiKey == "" {
		return errMissingAPIKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidAPIKey
	}
	if client.Extra != "" && subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}
	return checkPermission(client, permission)
}

func checkPermission(client config.APIClientKey, required string) error {
	// If permissions list is empty, treat as allow-all.
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

// Allow applies the rate limit for clientKey.
func (a *Authenticator) Allow(clientKey string) bool {
	return a.limiter.Allow(clientKey)
}

// UnaryInterceptor enforces auth and rate limits on gRPC calls.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		// probes carry no credentials
		if strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		apiKey := first(md.Get(a.apiKeyHeader))

		if err := a.Check(apiKey, first(md.Get(a.extraHeader)), requiredPermissionGRPC(info.FullMethod)); err != nil {
			if errors.Is(err, errPermissionDenied) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		key := apiKey
		if key == "" {
			key = peerAddr(ctx)
		}
		if !a.Allow(key) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimitExceeded.Error())
		}
		return handler(ctx, req)
	}
}

func requiredPermissionGRPC(fullMethod string) string {
	switch fullMethod {
	case admitFullMethod:
		return permWriteReservations
	case checkFullMethod:
		return permCheckReservations
	default:
		return ""
	}
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}
