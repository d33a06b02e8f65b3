package models

import "time"

// Transaction types recorded in the talent ledger.
const (
	TypeIndividualGive = "individual_give"
	TypeIndividualTake = "individual_take"
	TypeGroupGive      = "group_give"
)

// TalentTransaction is an immutable ledger record. Rows are created by the
// ledger engine and never updated or deleted; historical reporting folds
// over them.
type TalentTransaction struct {
	ID        string    `json:"id" db:"id"`
	StudentID string    `json:"student_id" db:"student_id"`
	TeacherID *string   `json:"teacher_id,omitempty" db:"teacher_id"`
	Amount    int64     `json:"amount" db:"amount"` // signed: + for grants, - for revokes
	Type      string    `json:"transaction_type" db:"transaction_type"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TransactionFilter narrows QueryTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	Start       *time.Time
	End         *time.Time
	Group       string
	StudentID   string
	StudentName string // substring match on the student's display name
	TeacherID   string
	Type        string
	Limit       int
	Offset      int
}

// GroupSummary aggregates student balances per group for reporting.
type GroupSummary struct {
	Group         string `json:"group"`
	MemberCount   int    `json:"member_count"`
	CurrentTalent int64  `json:"current_talent"`
	MaxTalent     int64  `json:"max_talent"`
}
