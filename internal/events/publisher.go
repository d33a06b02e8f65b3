package events

import "time"

// Publisher emits ledger events for downstream consumers (reporting,
// export). The destination topic is fixed when the publisher is built.
// Publishing happens after the database commit; a failed publish never
// affects the committed transaction.
type Publisher interface {
	Publish(event any) error
	Close() error
}

// TransactionRecorded is emitted once per committed ledger transaction.
type TransactionRecorded struct {
	TransactionID string    `json:"transaction_id"`
	StudentID     string    `json:"student_id"`
	TeacherID     *string   `json:"teacher_id,omitempty"`
	Amount        int64     `json:"amount"`
	Type          string    `json:"transaction_type"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
