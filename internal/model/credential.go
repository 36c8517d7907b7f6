package model

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Role values carried in upstream-issued tokens.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// ErrMalformedToken is returned when a bearer token cannot be decoded or
// carries no usable identity.
var ErrMalformedToken = errors.New("malformed bearer token")

// Credential is the explicitly passed identity for one request or attempt.
// The token is issued and signature-verified by the upstream auth provider;
// the gateway only decodes the claims to learn who it is acting for, and
// forwards the raw token on every upstream call. Callers own its lifecycle.
type Credential struct {
	Token     string `json:"-"`
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Empty reports whether no credential is present.
func (c Credential) Empty() bool {
	return c.Token == ""
}

// IsAdmin reports whether the credential carries the admin role claim.
func (c Credential) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CredentialFromBearer decodes a bearer token's claims without verifying
// the signature. Verification is the upstream auth provider's job, and the
// upstream re-checks the token on every call this gateway forwards.
func CredentialFromBearer(token string) (Credential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	cred := Credential{
		Token:     token,
		StudentID: firstStringClaim(claims, "userId", "id", "sub"),
		Name:      firstStringClaim(claims, "fullName", "name"),
		Role:      firstStringClaim(claims, "role"),
	}
	if cred.StudentID == "" {
		return Credential{}, fmt.Errorf("%w: no subject claim", ErrMalformedToken)
	}
	return cred, nil
}

func firstStringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
