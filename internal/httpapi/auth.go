package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/scope"
	"tirepos/backend/internal/seed"
	"tirepos/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Directory is the part of the repository the auth manager reads.
type Directory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListStores(ctx context.Context) ([]domain.StoreAccount, error)
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
}

// AuthManager signs and parses session tokens. A token carries the whole
// session: identity, selected branch and effective capability. Every
// session change issues a new token.
type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	directory Directory
	logger    *slog.Logger
	now       func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Name       string `json:"name"`
	Role       string `json:"role"`
	Home       string `json:"home,omitempty"`
	Store      string `json:"store,omitempty"`
	Capability string `json:"cap"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, directory Directory, logger *slog.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		directory: directory,
		logger:    logger.With("component", "auth"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the credentials and starts a session. Owners come back in
// STAFF capability with no branch selected.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.authenticate(ctx, strings.TrimSpace(req.UserID), req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if user.Role != domain.RoleSuperAdmin && user.Role != domain.RoleStoreAdmin {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	session := scope.NewSession(scope.Identity{
		ID:          user.ID,
		Name:        user.Name,
		Role:        user.Role,
		HomeStoreID: user.HomeStoreID,
	})
	return a.Issue(session)
}

// SelectBranch moves the session to one owned branch or to every branch.
// The capability drops back to STAFF.
func (a *AuthManager) SelectBranch(ctx context.Context, session scope.Session, storeID string) (domain.LoginResponse, error) {
	stores, err := a.directory.ListStores(ctx)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	next, err := session.SelectBranch(strings.TrimSpace(storeID), stores)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return a.Issue(next)
}

// Unlock raises an owner session to admin capability after the owner
// re-enters the password. A wrong password leaves the session as it was.
func (a *AuthManager) Unlock(ctx context.Context, session scope.Session, password string) (domain.LoginResponse, error) {
	if session.Identity.Role != domain.RoleStoreAdmin {
		return domain.LoginResponse{}, fmt.Errorf("%w: only owner sessions can be unlocked", store.ErrInvalid)
	}
	if session.NeedsBranch() {
		return domain.LoginResponse{}, scope.ErrBranchRequired
	}
	if _, err := a.authenticate(ctx, session.Identity.ID, password); err != nil {
		return domain.LoginResponse{}, err
	}
	return a.Issue(session.Unlock())
}

func (a *AuthManager) Lock(session scope.Session) (domain.LoginResponse, error) {
	return a.Issue(session.Lock())
}

// Issue signs a token for session.
func (a *AuthManager) Issue(session scope.Session) (domain.LoginResponse, error) {
	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(session, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken:    token,
		UserID:         session.Identity.ID,
		Name:           session.Identity.Name,
		Role:           session.Identity.Role,
		Capability:     session.Capability,
		StoreID:        session.StoreID,
		RequiresBranch: session.NeedsBranch(),
		Console:        session.Identity.Role == domain.RoleSuperAdmin,
		ExpiresAt:      expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (scope.Session, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return scope.Session{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return scope.Session{}, ErrInvalidToken
	}

	session := scope.Session{
		Identity: scope.Identity{
			ID:          sub,
			Name:        claims.Name,
			Role:        claims.Role,
			HomeStoreID: claims.Home,
		},
		StoreID:    claims.Store,
		Capability: claims.Capability,
	}
	// An owner token never carries more than STORE_ADMIN.
	if session.Identity.Role == domain.RoleStoreAdmin && session.Capability == domain.RoleSuperAdmin {
		return scope.Session{}, ErrInvalidToken
	}
	return session, nil
}

func (a *AuthManager) sign(session scope.Session, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   session.Identity.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "tirepos",
		},
		Name:       session.Identity.Name,
		Role:       session.Identity.Role,
		Home:       session.Identity.HomeStoreID,
		Store:      session.StoreID,
		Capability: session.Capability,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// authenticate loads the user and checks the password. A stored password
// that is not yet a bcrypt hash is compared as-is and upgraded on success.
func (a *AuthManager) authenticate(ctx context.Context, userID string, password string) (*domain.User, error) {
	if userID == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := a.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if isPasswordHash(user.Password) {
		if !verifyPassword(user.Password, password) {
			return nil, ErrInvalidCredentials
		}
		return user, nil
	}

	if user.Password == "" || subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return nil, ErrInvalidCredentials
	}
	hashed, err := seed.HashPassword(password)
	if err == nil {
		if err := a.directory.UpdateUserPassword(ctx, user.ID, hashed); err != nil {
			a.logger.Warn("legacy password upgrade failed", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
