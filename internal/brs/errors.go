package brs

import "errors"

// Login and form-extraction failures are fatal to a swap run; callers map
// them straight to a failed status. Non-2xx fetches are returned as plain
// wrapped errors and left to the caller's retry policy.
var (
	ErrLoginFormNotFound     = errors.New("login form not found")
	ErrLoginFieldsUndetected = errors.New("could not detect login fields")
	ErrLoginRejected         = errors.New("login rejected")
	ErrBookingFormNotFound   = errors.New("booking form not found")
)
