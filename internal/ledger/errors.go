package ledger

import "errors"

var (
	// ErrNotFound indicates the requested user has never been registered.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidTelegramID indicates a write was attempted without a chat-platform identity.
	ErrInvalidTelegramID = errors.New("telegram id must be positive")
)
