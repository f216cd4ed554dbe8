package models

import "errors"

// storage
var (
	ErrLoad = errors.New("loading accounts")
	ErrSave = errors.New("saving accounts")
)

// authentication
var (
	ErrCardNotFound = errors.New("card number not found")
	ErrAuthFailed   = errors.New("too many incorrect PIN attempts")
)

// registration
var (
	ErrDuplicateCard     = errors.New("card number already registered")
	ErrPINMismatch       = errors.New("PINs do not match")
	ErrInvalidBalance    = errors.New("invalid initial balance")
	ErrCapacityExceeded  = errors.New("user limit reached")
	ErrInvalidCardNumber = errors.New("invalid card number")
	ErrInvalidPIN        = errors.New("PIN must be 4 digits")
)

// account operations
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOldPINIncorrect     = errors.New("old PIN incorrect")
)
