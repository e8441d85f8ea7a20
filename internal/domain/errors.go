package domain

import "errors"

var (
	// ErrNotConnected is returned by publish/subscribe outside the Connected state.
	ErrNotConnected = errors.New("broker not connected")

	// ErrConnection means the broker stayed unreachable after every connect attempt.
	// Hosting processes treat it as a startup failure.
	ErrConnection = errors.New("broker connection failed")

	// ErrDispatch means a job could not be published within its retry window.
	ErrDispatch = errors.New("job dispatch failed")

	// ErrPersistence means a result envelope could not be written to the durable store.
	ErrPersistence = errors.New("result persistence failed")

	// ErrInvalidEnvelope marks a result message that could not be decoded.
	ErrInvalidEnvelope = errors.New("invalid result envelope")

	// ErrUnauthenticated is returned for missing or unverifiable bearer credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTokenExpired is returned when the bearer credential was valid but has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrUserNotFound is returned by user lookups with no match.
	ErrUserNotFound = errors.New("user not found")
)

// ErrStoreUnavailable marks store failures caused by a lost or refused database connection.
var ErrStoreUnavailable = errors.New("store unavailable")
