package entity

import "errors"

var (
	// Intake errors
	ErrEmptyRequest    = errors.New("request contains no messages")
	ErrTooManyMessages = errors.New("request exceeds the message intake limit")

	// Scheduler errors
	ErrJobNotFound   = errors.New("scheduled job not found")
	ErrInvalidStride = errors.New("invalid schedule spec")
)
