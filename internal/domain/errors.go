package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrUserNotFound     = errors.New("user not found")
)
