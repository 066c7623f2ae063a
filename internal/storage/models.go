package storage

import (
	"time"

	"github.com/google/uuid"
)

// CycleRecord is one ExecuteCycle attempt, successful or not.
type CycleRecord struct {
	ID          uuid.UUID `json:"id"`
	MachineID   string    `json:"machine_id"`
	CycleNumber int       `json:"cycle_number"`
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	MoldIDs     []string  `json:"mold_ids"`
	ExecutedAt  time.Time `json:"executed_at"`
}

type User struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         *time.Time `json:"last_login_at"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
}

// StationToken is a long-lived credential for the scheduling agent at one machine.
type StationToken struct {
	ID              uuid.UUID  `json:"id"`
	TokenHash       string     `json:"-"`
	Name            string     `json:"name"`
	MachineID       string     `json:"machine_id"`
	Role            string     `json:"role"`
	CreatedAt       time.Time  `json:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	CreatedByUserID *uuid.UUID `json:"created_by_user_id"`
}
