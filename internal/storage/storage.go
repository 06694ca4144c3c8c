package storage

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrDeviceNotFound  = errors.New("device not found")
)

// AccountUpdate enumerates the mutable account fields. A nil field is left
// untouched.
type AccountUpdate struct {
	Name     *string
	Email    *string
	PassHash []byte
}

// DeviceUpdate enumerates the mutable device display fields.
type DeviceUpdate struct {
	Name  *string
	Emoji *string
}
