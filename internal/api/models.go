package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/service"
)

// RegisterRequest is the payload of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest is the payload of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse is returned by the register and login endpoints.
type AuthResponse struct {
	AccountID   uuid.UUID `json:"account_id"`
	AccessToken string    `json:"token"`

	// ExpiresAt is the RFC 3339 time at which the token expires.
	ExpiresAt string `json:"expires_at"`
}

// AccountResponse is returned by GET /api/account.
type AccountResponse struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Credits int64     `json:"credits"`
}

// TextToImageRequest is the payload of POST /api/generations/text-to-image.
type TextToImageRequest struct {
	Prompt      string `json:"prompt"       validate:"required"`
	AspectRatio string `json:"aspect_ratio" validate:"required"`
	IsPublic    bool   `json:"is_public"`
}

// SubmitResponse acknowledges an accepted generation request.
type SubmitResponse struct {
	TaskID        uuid.UUID `json:"task_id"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	Cost          int64     `json:"cost"`
	EstimatedTime int       `json:"estimated_time"`
}

// Pagination describes the window returned by a list endpoint.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// TaskListResponse is returned by GET /api/generations.
type TaskListResponse struct {
	Tasks      []*service.TaskView `json:"tasks"`
	Pagination Pagination          `json:"pagination"`
}
