package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates a presentation-layer client (the bot process).
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyHash   string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
