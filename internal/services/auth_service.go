package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakCredentials    = errors.New("email required and password must be at least 8 characters")
	ErrPasswordRequired   = errors.New("password is required")
)

const minPasswordLen = 8

type AuthService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

// Register creates a citizen account. Staff accounts are promoted through the
// users table or the GOVERNMENT_* lists, never through sign-up.
func (s *AuthService) Register(ctx context.Context, appID string, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || len(req.Password) < minPasswordLen {
		return nil, ErrWeakCredentials
	}

	db := s.scoped(ctx, appID)
	var existing models.User
	if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:       uuid.New(),
		AppID:    appID,
		Email:    req.Email,
		Password: string(hash),
		Role:     models.RoleCitizen,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "user registered", "app_id", appID, "user_id", user.ID.String())
	return s.generateTokenPair(ctx, appID, &user)
}

func (s *AuthService) Login(ctx context.Context, appID string, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	var user models.User
	if err := s.scoped(ctx, appID).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.generateTokenPair(ctx, appID, &user)
}

// Refresh exchanges a usable refresh token for a new pair and spends the old
// one.
func (s *AuthService) Refresh(ctx context.Context, appID string, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	var stored models.RefreshToken
	if err := s.scoped(ctx, appID).Where("token_hash = ?", hashToken(req.RefreshToken)).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}
	now := time.Now()
	if !stored.Usable(now) {
		return nil, ErrInvalidToken
	}
	s.db.WithContext(ctx).Model(&stored).Updates(map[string]any{"revoked": true, "revoked_at": now})

	var user models.User
	if err := s.scoped(ctx, appID).First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}
	return s.generateTokenPair(ctx, appID, &user)
}

func (s *AuthService) Logout(ctx context.Context, appID string, req *dto.LogoutRequest) error {
	return s.scoped(ctx, appID).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", hashToken(req.RefreshToken), false).
		Updates(map[string]any{"revoked": true, "revoked_at": time.Now()}).Error
}

func (s *AuthService) DeleteAccount(ctx context.Context, appID string, userID uuid.UUID, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	var user models.User
	if err := s.scoped(ctx, appID).First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	// Reports stay public after the account goes; they just lose their creator.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND app_id = ?", userID, appID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Report{}).
			Where("creator_id = ? AND app_id = ?", userID, appID).
			Update("creator_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

func (s *AuthService) scoped(ctx context.Context, appID string) *gorm.DB {
	return s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID))
}

func (s *AuthService) generateTokenPair(ctx context.Context, appID string, user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(appID, user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, appID, user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWTAccessExpiry.Seconds()),
		User: dto.UserResponse{
			ID:    user.ID,
			AppID: appID,
			Email: user.Email,
			Role:  s.role(user),
		},
	}, nil
}

func (s *AuthService) generateAccessToken(appID string, user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":    user.ID.String(),
		"email":  user.Email,
		"app_id": appID,
		"role":   s.role(user),
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, appID string, user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)
	tokenHash := hashToken(rawToken)

	record := models.RefreshToken{
		ID:        uuid.New(),
		AppID:     appID,
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func (s *AuthService) role(user *models.User) string {
	if user.Role == models.RoleGovernment || s.cfg.IsGovernment(user.Email, user.ID.String()) {
		return models.RoleGovernment
	}
	return models.RoleCitizen
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
