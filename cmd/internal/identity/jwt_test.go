package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func mintToken(t *testing.T, key []byte, c claims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func baseClaims(now time.Time) claims {
	return claims{
		TenantID: "tenant-1",
		Role:     "staff",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
}

func TestJWTResolver_ResolveValid(t *testing.T) {
	t.Parallel()

	r, err := NewJWTResolver(testKey)
	if err != nil {
		t.Fatalf("NewJWTResolver: %v", err)
	}

	now := time.Now().UTC()
	tok := mintToken(t, testKey, baseClaims(now))

	id, err := r.Resolve(context.Background(), tok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.TenantID != "tenant-1" || id.UserID != "user-1" || id.Role != RoleStaff {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestJWTResolver_RejectsUniformly(t *testing.T) {
	t.Parallel()

	r, err := NewJWTResolver(testKey)
	if err != nil {
		t.Fatalf("NewJWTResolver: %v", err)
	}

	now := time.Now().UTC()

	expired := baseClaims(now)
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-2 * time.Hour))

	badRole := baseClaims(now)
	badRole.Role = "superuser"

	clientNoCustomer := baseClaims(now)
	clientNoCustomer.Role = "client"

	otherKey := []byte("ffffffffffffffffffffffffffffffff")

	cases := []struct {
		name       string
		credential string
	}{
		{name: "empty", credential: ""},
		{name: "garbage", credential: "not-a-token"},
		{name: "expired", credential: mintToken(t, testKey, expired)},
		{name: "wrong key", credential: mintToken(t, otherKey, baseClaims(now))},
		{name: "unknown role", credential: mintToken(t, testKey, badRole)},
		{name: "client missing customer", credential: mintToken(t, testKey, clientNoCustomer)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := r.Resolve(context.Background(), tc.credential)
			if !errors.Is(err, ErrAuthRejected) {
				t.Fatalf("want ErrAuthRejected, got %v", err)
			}
		})
	}
}

func TestJWTResolver_ClientRoleCarriesCustomerScope(t *testing.T) {
	t.Parallel()

	r, err := NewJWTResolver(testKey)
	if err != nil {
		t.Fatalf("NewJWTResolver: %v", err)
	}

	now := time.Now().UTC()
	c := baseClaims(now)
	c.Role = "client"
	c.CustomerID = "customer-9"

	id, err := r.Resolve(context.Background(), mintToken(t, testKey, c))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Role != RoleClient || id.CustomerID != "customer-9" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.Role.IsStaff() {
		t.Fatalf("client role must not be staff")
	}
}

type fakeDenylist struct {
	revoked map[string]bool
	err     error
}

func (f fakeDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[tokenID], nil
}

func TestJWTResolver_Denylist(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tok := mintToken(t, testKey, baseClaims(now))

	t.Run("revoked token rejected", func(t *testing.T) {
		t.Parallel()

		r, err := NewJWTResolver(testKey, WithDenylist(fakeDenylist{revoked: map[string]bool{"jti-1": true}}))
		if err != nil {
			t.Fatalf("NewJWTResolver: %v", err)
		}
		if _, err := r.Resolve(context.Background(), tok); !errors.Is(err, ErrAuthRejected) {
			t.Fatalf("want ErrAuthRejected, got %v", err)
		}
	})

	t.Run("denylist outage fails closed", func(t *testing.T) {
		t.Parallel()

		r, err := NewJWTResolver(testKey, WithDenylist(fakeDenylist{err: errors.New("redis down")}))
		if err != nil {
			t.Fatalf("NewJWTResolver: %v", err)
		}
		if _, err := r.Resolve(context.Background(), tok); !errors.Is(err, ErrAuthRejected) {
			t.Fatalf("want ErrAuthRejected, got %v", err)
		}
	})
}

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	s := NewStaticResolver()
	if err := s.Grant("cred-1", Identity{TenantID: "t1", UserID: "u1", Role: RoleAdmin}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := s.Grant("cred-bad", Identity{TenantID: "t1", UserID: "u2", Role: "nope"}); err == nil {
		t.Fatalf("expected invalid role to be rejected")
	}

	id, err := s.Resolve(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.UserID != "u1" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	s.Revoke("cred-1")
	if _, err := s.Resolve(context.Background(), "cred-1"); !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("want ErrAuthRejected after revoke, got %v", err)
	}
}
