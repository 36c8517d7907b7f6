package model

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestCredentialFromBearer(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   Credential
	}{
		{
			name:   "userId claim",
			claims: jwt.MapClaims{"userId": "u-1", "fullName": "Ada", "role": "student"},
			want:   Credential{StudentID: "u-1", Name: "Ada", Role: "student"},
		},
		{
			name:   "sub fallback",
			claims: jwt.MapClaims{"sub": "u-2", "name": "Grace"},
			want:   Credential{StudentID: "u-2", Name: "Grace"},
		},
		{
			name:   "id outranks sub",
			claims: jwt.MapClaims{"id": "u-3", "sub": "ignored"},
			want:   Credential{StudentID: "u-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := sign(t, tt.claims)
			got, err := CredentialFromBearer(raw)
			if err != nil {
				t.Fatalf("CredentialFromBearer: %v", err)
			}
			if got.StudentID != tt.want.StudentID || got.Name != tt.want.Name || got.Role != tt.want.Role {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got.Token != raw {
				t.Fatal("raw token must be carried for upstream forwarding")
			}
		})
	}
}

func TestCredentialFromBearerRejectsGarbage(t *testing.T) {
	if _, err := CredentialFromBearer("not-a-jwt"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("err = %v, want ErrMalformedToken", err)
	}
}

func TestCredentialFromBearerRequiresSubject(t *testing.T) {
	raw := sign(t, jwt.MapClaims{"fullName": "Nobody"})
	if _, err := CredentialFromBearer(raw); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("err = %v, want ErrMalformedToken", err)
	}
}

func TestCredentialRoles(t *testing.T) {
	admin := Credential{Token: "t", StudentID: "a", Role: RoleAdmin}
	student := Credential{Token: "t", StudentID: "s", Role: RoleStudent}

	if !admin.IsAdmin() || student.IsAdmin() {
		t.Fatal("role check broken")
	}
	if admin.Empty() {
		t.Fatal("credential with token must not be empty")
	}
	if !(Credential{}).Empty() {
		t.Fatal("zero credential must be empty")
	}
}
