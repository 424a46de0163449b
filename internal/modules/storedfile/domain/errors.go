package domain

import "errors"

var (
	ErrFileNotFound       = errors.New("stored file not found")
	ErrUnknownDerivation  = errors.New("unknown file derivation type")
	ErrUnknownOperation   = errors.New("unknown derivation operation")
	ErrInvalidDerivations = errors.New("invalid derivation configuration")
	ErrFileCorrupt        = errors.New("stored file is corrupt")
	ErrNotLocal           = errors.New("stored file is not on this node")
	ErrNotReady           = errors.New("stored file is not ready")
	ErrForbidden          = errors.New("stored file belongs to another user")
	ErrInvalidSource      = errors.New("invalid source")
	ErrFileTooLarge       = errors.New("file exceeds the maximum size")
	ErrBlockedAddress     = errors.New("source address is not allowed")
)
