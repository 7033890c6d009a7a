package models

import "time"

// Credentials hold the login secret of an auth-gated user. TokenVersion is embedded in
// every issued token; bumping it revokes all tokens issued before.
type Credentials struct {
	UserID       string    `json:"user_id" bson:"user_id" gorm:"primaryKey"`
	PasswordHash string    `json:"-" bson:"password_hash" gorm:"not null"`
	TokenVersion int       `json:"-" bson:"token_version" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

type CreateUserRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
