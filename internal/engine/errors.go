package engine

import "errors"

var (
	// ErrAuthenticity means the callback signature is missing, malformed,
	// stale or does not match the shared secret.
	ErrAuthenticity = errors.New("webhook signature verification failed")

	// ErrMalformedEvent means a correctly signed callback could not be
	// decoded into a usable event. Redelivery will not help.
	ErrMalformedEvent = errors.New("malformed payment event")

	// ErrTransient means storage failed before the event's effect was
	// committed. The provider should redeliver.
	ErrTransient = errors.New("transient storage failure")
)
