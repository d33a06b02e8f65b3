package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	StudentID     string    `json:"student_id"`
	OperatorID    string    `json:"operator_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogMutation(eventType, transactionID, studentID, operatorID string, amount int64, reason string) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     eventType,
		TransactionID: transactionID,
		StudentID:     studentID,
		OperatorID:    operatorID,
		Amount:        amount,
		Status:        "SUCCESS",
		Details:       map[string]string{"reason": reason},
	}
	a.log(event)
}

func (a *Logger) LogError(studentID, operatorID string, err error) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "ERROR",
		StudentID:  studentID,
		OperatorID: operatorID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
