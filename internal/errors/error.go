package errors

import "github.com/pkg/errors"

var (
	// envelope errors
	ErrMalformedEnvelope = errors.New("malformed notification envelope")

	// lookup errors
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrCursorNotFound  = errors.New("mailbox cursor not found")

	// upstream errors
	ErrUpstreamFetch     = errors.New("history fetch failed")
	ErrMessageEnrichment = errors.New("message enrichment failed")
	ErrMessageNotFound   = errors.New("message no longer exists")
	ErrPushDispatch      = errors.New("push dispatch failed")

	// persistence errors
	ErrVerificationRecord = errors.New("verification record persistence failed")
	ErrCursorCommit       = errors.New("cursor commit failed")
)
