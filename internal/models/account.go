package models

import "time"

// Account roles. Only admins and teachers may operate the ledger;
// only students may be targets of a grant or revoke.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

type Account struct {
	ID            string    `json:"id" db:"id"`
	Username      string    `json:"username" db:"username"`
	Name          string    `json:"name" db:"name"`
	Role          string    `json:"role" db:"role"`
	Group         string    `json:"group,omitempty" db:"group_name"`
	Grade         string    `json:"grade,omitempty" db:"grade"`
	Gender        string    `json:"gender,omitempty" db:"gender"`
	Church        string    `json:"church,omitempty" db:"church"`
	CurrentTalent int64     `json:"current_talent" db:"current_talent"`
	MaxTalent     int64     `json:"max_talent" db:"max_talent"` // high-water mark, never reduced
	Version       int       `json:"-" db:"version"`             // for optimistic locking
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

func (a *Account) IsOperator() bool {
	return a.Role == RoleAdmin || a.Role == RoleTeacher
}

// AccountBalance is the reporting subset of an account.
type AccountBalance struct {
	ID            string `json:"id" db:"id"`
	Name          string `json:"name" db:"name"`
	Group         string `json:"group,omitempty" db:"group_name"`
	CurrentTalent int64  `json:"current_talent" db:"current_talent"`
	MaxTalent     int64  `json:"max_talent" db:"max_talent"`
}
