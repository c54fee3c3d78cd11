package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/firmdesk/firmdesk/internal/rbac"
)

// Claims is the bearer token payload.
type Claims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs bearer tokens for authenticated users.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an HS256 token issuer.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for id and returns it with its expiry.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	if id.UserID == "" {
		return "", time.Time{}, errors.New("identity: issue token without subject")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Role:     id.Role.String(),
		TenantID: id.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, expires, nil
}

// JWTResolver authenticates requests carrying an "Authorization: Bearer" header.
type JWTResolver struct {
	secret    []byte
	parser    *jwt.Parser
	directory *Directory
}

// NewJWTResolver constructs a resolver that accepts HS256 tokens from issuer.
func NewJWTResolver(secret, issuer string) *JWTResolver {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTResolver{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// WithDirectory makes the resolver take role and tenant from d instead of the token claims.
// Role changes and deactivations then apply before the token expires.
func (j *JWTResolver) WithDirectory(d *Directory) *JWTResolver {
	j.directory = d
	return j
}

// Resolve implements Resolver. Requests without a bearer token are anonymous.
func (j *JWTResolver) Resolve(ctx context.Context, r *http.Request) (*Identity, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return nil, nil
	}

	claims := &Claims{}
	token, err := j.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredentials)
	}

	if j.directory != nil {
		id, err := j.directory.Lookup(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, fmt.Errorf("%w: token subject %s", ErrInvalidCredentials, claims.Subject)
			}
			return nil, err
		}
		return &id, nil
	}

	return &Identity{
		UserID:   claims.Subject,
		Role:     rbac.ParseRole(claims.Role),
		TenantID: claims.TenantID,
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
