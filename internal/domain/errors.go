package domain

import "errors"

var (
	ErrViewNotFound        = errors.New("view not found")
	ErrVendorNotFound      = errors.New("vendor not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAlreadyRefunded   = errors.New("transaction already refunded")
	ErrNotRefundable     = errors.New("transaction is not refundable")
	ErrBalanceWouldGoNeg = errors.New("adjustment would make balance negative")
)
