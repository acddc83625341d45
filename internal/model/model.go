package model

import "time"

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

type Payment struct {
	ID         string        `db:"id" json:"id"`
	UserID     string        `db:"user_id" json:"user_id"`
	Amount     float64       `db:"amount" json:"amount"`
	Status     PaymentStatus `db:"status" json:"status"`
	RetryCount int           `db:"retry_count" json:"retry_count"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}
