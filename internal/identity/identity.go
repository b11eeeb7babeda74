// Package identity turns bearer tokens into a verified {userId, role} and
// decodes the role-tagged signup payloads.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
)

type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleUser        Role = "User"
	RoleShopkeeper  Role = "Shopkeeper"
	RoleDeliveryman Role = "Deliveryman"
	RoleFarmer      Role = "Farmer"
)

var roles = map[Role]bool{
	RoleAdmin: true, RoleUser: true, RoleShopkeeper: true, RoleDeliveryman: true, RoleFarmer: true,
}

func (r Role) Valid() bool { return roles[r] }

// Identity is the verified caller of a request.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Claims is the JWT payload: sub carries the user id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret and, when set, the
// expected issuer and audience.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience, leeway: 30 * time.Second}
}

// Verify parses raw and returns the identity it carries.
func (v *Verifier) Verify(raw string) (Identity, error) {
	const op = "identity.Verify"

	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway), // small clock skew
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return Identity{}, &apperr.Error{Kind: apperr.KindUnauthenticated, Op: op, Message: msg, Err: err}
	}
	if claims.Subject == "" {
		return Identity{}, apperr.New(apperr.KindUnauthenticated, op, "token has no subject")
	}
	if !claims.Role.Valid() {
		return Identity{}, apperr.New(apperr.KindUnauthenticated, op, "token has unknown role %q", claims.Role)
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// Issue signs a token for id. Used by local tooling and tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
