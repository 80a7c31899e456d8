// Package auth provides authentication and authorization for the control API.
// It handles password checking against configured accounts, JWT token
// generation/validation, and role checks.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/skytrack/pkg/config"
)

// User roles for role-based access control (RBAC)
const (
	RoleAdmin    = "admin"    // Full system access
	RoleObserver = "observer" // Telescope control and viewing
	RoleViewer   = "viewer"   // Read-only access
)

const issuer = "skytrack"

var (
	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnauthorized is returned when user lacks required permissions
	ErrUnauthorized = errors.New("unauthorized access")
)

// Claims represents the JWT claims for a user session
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	JWTSecret     string        // Secret key for signing JWTs
	TokenDuration time.Duration // How long tokens are valid
	BCryptCost    int           // BCrypt hashing cost
	Users         []config.UserConfig
}

// FromConfig converts the file configuration into a service Config.
func FromConfig(cfg config.AuthConfig) Config {
	return Config{
		JWTSecret:     cfg.JWTSecret,
		TokenDuration: time.Duration(cfg.TokenHours) * time.Hour,
		Users:         cfg.Users,
	}
}

// Service provides authentication operations
type Service struct {
	config Config
	users  map[string]config.UserConfig
}

// NewService creates a new authentication service
func NewService(cfg Config) *Service {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}

	users := make(map[string]config.UserConfig, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u
	}

	return &Service{
		config: cfg,
		users:  users,
	}
}

// HashPassword hashes a plaintext password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares a plaintext password with a hashed password
func (s *Service) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// Login checks username/password against the configured accounts and
// returns a signed token on success.
func (s *Service) Login(username, password string) (string, *Claims, error) {
	user, ok := s.users[username]
	if !ok {
		return "", nil, ErrInvalidCredentials
	}
	if err := s.ComparePassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(username, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// HasRole checks if a user has a specific role or higher
// Role hierarchy: Admin > Observer > Viewer
func HasRole(userRole, requiredRole string) bool {
	roleLevel := map[string]int{
		RoleAdmin:    2,
		RoleObserver: 1,
		RoleViewer:   0,
	}

	userLevel, ok1 := roleLevel[userRole]
	requiredLevel, ok2 := roleLevel[requiredRole]
	if !ok1 || !ok2 {
		return false
	}
	return userLevel >= requiredLevel
}

// CanControlTelescope checks if a role can issue mount commands
func CanControlTelescope(role string) bool {
	return HasRole(role, RoleObserver)
}

// CanViewActivities checks if a role can read activity status and history
func CanViewActivities(role string) bool {
	return HasRole(role, RoleViewer)
}
