package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/store/keys"
	"github.com/yz174/kliq/pkg/telemetry"
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// IdentityError is a failed user resolution with its HTTP status.
type IdentityError struct {
	Type    string
	Message string
	Code    int
}

func (e *IdentityError) Error() string { return e.Message }

var (
	ErrInvalidUserID    = &IdentityError{"invalid_user_id", "invalid user id", fasthttp.StatusBadRequest}
	ErrMissingSignature = &IdentityError{"missing_signature", "missing signature headers", fasthttp.StatusUnauthorized}
	ErrInvalidSignature = &IdentityError{"invalid_signature", "invalid signature", fasthttp.StatusUnauthorized}
)

// CreateHMACSignature signs a user id: hex(HMAC-SHA256(key, userID)).
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature checks signature against every configured signing key.
func VerifyHMACSignature(userID, signature string) bool {
	for k := range config.GetSigningKeys() {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

// SecConfig is the gateway's view of the security settings.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

// NewSecConfig converts configured key lists into lookup sets.
func NewSecConfig(c config.SecurityConfig) SecConfig {
	set := func(list []string) map[string]struct{} {
		m := make(map[string]struct{}, len(list))
		for _, k := range list {
			m[k] = struct{}{}
		}
		return m
	}
	return SecConfig{
		AllowedOrigins: c.CORS.AllowedOrigins,
		RPS:            c.RateLimit.RPS,
		Burst:          c.RateLimit.Burst,
		IPWhitelist:    c.IPWhitelist,
		BackendKeys:    set(c.APIKeys.Backend),
		FrontendKeys:   set(c.APIKeys.Frontend),
		AdminKeys:      set(c.APIKeys.Admin),
	}
}

// ResolveUser determines which user a request acts as. Frontend callers
// must present a signature over X-User-ID; backend callers may name any
// user. An empty id with a nil error means the request is anonymous.
func ResolveUser(ctx *fasthttp.RequestCtx, role Role) (string, *IdentityError) {
	tr := telemetry.Track("auth.resolve_user")
	defer tr.Finish()

	userID := router.GetHeader(ctx, "X-User-ID")
	sig := router.GetHeader(ctx, "X-User-Signature")

	if userID == "" {
		if sig != "" {
			return "", ErrMissingSignature
		}
		return "", nil
	}
	if err := keys.ValidateID(userID); err != nil {
		return "", ErrInvalidUserID
	}
	if sig == "" {
		if role == RoleBackend {
			return userID, nil
		}
		return "", ErrMissingSignature
	}

	tr.Mark("verify_signature")
	if !VerifyHMACSignature(userID, sig) {
		logger.Warn("invalid_signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", string(ctx.Path()))
		return "", ErrInvalidSignature
	}
	return userID, nil
}
