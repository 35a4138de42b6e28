package entities

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal identity record this service needs: enough to bind
// accounts and to verify the transaction PIN. Profile management lives in
// the identity service.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	PinHash   string    `json:"-" db:"pin_hash"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
