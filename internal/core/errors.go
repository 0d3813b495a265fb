package core

import "errors"

var (
	// ErrNoExtractableText means no page or byte of the input yielded text.
	// Surfaced as a request-level failure; no chunks are created.
	ErrNoExtractableText = errors.New("no extractable text content found")

	// ErrIncompleteSession means CloseSession was called while some chunks
	// still have a non-terminal upload status. A caller bug, not a runtime
	// condition.
	ErrIncompleteSession = errors.New("incomplete session: chunks still pending")

	// ErrSessionClosed means a session was closed twice.
	ErrSessionClosed = errors.New("session already closed")
)
