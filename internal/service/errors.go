package service

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserBlocked         = errors.New("user blocked")
	ErrEmailTaken          = errors.New("email already registered")
	ErrValidation          = errors.New("validation failed")

	ErrInvalidMessage   = errors.New("invalid message")
	ErrChatNotFound     = errors.New("chat not found")
	ErrForbidden        = errors.New("forbidden")
	ErrEditWindowClosed = errors.New("edit window closed")
)
