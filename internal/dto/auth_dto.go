package dto

import "github.com/google/uuid"

// Credentials is the body of both register and login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type (
	RegisterRequest = Credentials
	LoginRequest    = Credentials
)

// TokenRequest carries a refresh token for rotation or revocation.
type TokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type (
	RefreshRequest = TokenRequest
	LogoutRequest  = TokenRequest
)

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// AuthResponse is returned by register, login and refresh. ExpiresIn is the
// access token lifetime in seconds.
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	AppID string    `json:"app_id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}
