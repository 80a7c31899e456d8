package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/skytrack/pkg/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return NewService(Config{
		JWTSecret:  "test-secret",
		BCryptCost: bcrypt.MinCost,
		Users: []config.UserConfig{
			{Username: "alice", PasswordHash: string(hash), Role: RoleObserver},
		},
	})
}

// TestPasswordHashing tests bcrypt hashing round trip.
func TestPasswordHashing(t *testing.T) {
	svc := newTestService(t)

	hash, err := svc.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := svc.ComparePassword(hash, "hunter2"); err != nil {
		t.Errorf("Expected password to match: %v", err)
	}
	if err := svc.ComparePassword(hash, "wrong"); err == nil {
		t.Error("Expected mismatch for wrong password")
	}
}

// TestLogin tests credential checking against configured users.
func TestLogin(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "Valid credentials", username: "alice", password: "s3cret"},
		{name: "Wrong password", username: "alice", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "Unknown user", username: "mallory", password: "s3cret", wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, claims, err := svc.Login(tt.username, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			if token == "" {
				t.Error("Expected a token")
			}
			if claims.Username != "alice" || claims.Role != RoleObserver {
				t.Errorf("Unexpected claims %+v", claims)
			}
		})
	}
}

// TestValidateToken tests token parsing, tampering and expiry.
func TestValidateToken(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateToken("bob", RoleViewer)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	t.Run("Valid", func(t *testing.T) {
		claims, err := svc.ValidateToken(token)
		if err != nil {
			t.Fatalf("ValidateToken failed: %v", err)
		}
		if claims.Username != "bob" || claims.Role != RoleViewer {
			t.Errorf("Unexpected claims %+v", claims)
		}
	})

	t.Run("Wrong secret", func(t *testing.T) {
		other := NewService(Config{JWTSecret: "other-secret"})
		if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		claims := &Claims{
			Username: "bob",
			Role:     RoleViewer,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				Issuer:    issuer,
			},
		}
		expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if _, err := svc.ValidateToken(expired); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken for expired token, got %v", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := svc.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})
}

// TestHasRole tests the role hierarchy.
func TestHasRole(t *testing.T) {
	tests := []struct {
		user, required string
		want           bool
	}{
		{RoleAdmin, RoleObserver, true},
		{RoleObserver, RoleObserver, true},
		{RoleViewer, RoleObserver, false},
		{RoleViewer, RoleViewer, true},
		{"guest", RoleViewer, false},
	}

	for _, tt := range tests {
		if got := HasRole(tt.user, tt.required); got != tt.want {
			t.Errorf("HasRole(%q, %q) = %v, want %v", tt.user, tt.required, got, tt.want)
		}
	}

	if !CanControlTelescope(RoleObserver) || CanControlTelescope(RoleViewer) {
		t.Error("Only observers and above may control the telescope")
	}
	if !CanViewActivities(RoleViewer) {
		t.Error("Viewers may read activities")
	}
}

// TestFromConfig tests conversion from file settings.
func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.AuthConfig{JWTSecret: "x", TokenHours: 2})
	if cfg.TokenDuration != 2*time.Hour {
		t.Errorf("Expected 2h token duration, got %v", cfg.TokenDuration)
	}
}
