package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidMarket     = errors.New("invalid market snapshot")
	ErrSigningFailed     = errors.New("signing failed")
	ErrMatchingAmbiguous = errors.New("outcome alignment ambiguous")
	ErrQualityRejected   = errors.New("quality filter rejected")
	ErrValidationFailed  = errors.New("pre-trade validation failed")
	ErrLegSubmission     = errors.New("leg submission failed")
	ErrLegTimeout        = errors.New("leg fill timeout")
	ErrLedgerClaimDenied = errors.New("ledger claim denied")
	ErrStateConflict     = errors.New("ledger state conflict")
)
