package services

import "errors"

var (
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrDestinationUnresolved = errors.New("payout destination unresolved")
	ErrInvalidLedgerEntry    = errors.New("invalid ledger entry")
)
