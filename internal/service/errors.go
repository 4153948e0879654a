package service

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrUnauthorized           = errors.New("not allowed")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrPaymentLinkFailed means the hold was created but no checkout URL
	// could be obtained. The hold stays and either gets paid later or expires.
	ErrPaymentLinkFailed = errors.New("payment link generation failed")
)
