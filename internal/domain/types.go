package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// --- Shared Custom Types ---

// JSONB is a helper for handling JSONB columns in Postgres as a map.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Pagination
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// Response standardizes API responses.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ChargeOutcome is the definitive result of a charge attempt. Refusals
// are expected outcomes carried in Reason, not errors.
type ChargeOutcome struct {
	Charged bool   `json:"charged"`
	Reason  string `json:"reason,omitempty"`
	Amount  int64  `json:"amount,omitempty"` // paisa, set when Charged
}

// Refused builds a refusal outcome.
func Refused(reason string) ChargeOutcome {
	return ChargeOutcome{Charged: false, Reason: reason}
}

// TransactionManager runs fn inside one persistence transaction. Any
// error rolls back every write made through the transactional context.
type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
