// Package auth registers and authenticates users with email and password.
// It is the reference identity provider for the subscription API: it only
// proves who the caller is, token issuance lives in pkg/jwt.
package auth

import (
	"context"
	"time"
)

// Roles assigned to users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Storage persists users. CreateUser returns ErrEmailAlreadyExists for a
// taken email and GetUserByEmail returns ErrUserNotFound.
type Storage interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}
