package service

import "errors"

var (
	// ErrJobNotFound is returned when a job id resolves to nothing.
	ErrJobNotFound = errors.New("generation job not found")
	// ErrJobTerminal is returned when a terminal job is asked to advance.
	ErrJobTerminal = errors.New("generation job already terminal")
	// ErrEmbeddingCountMismatch is returned when the embedding capability
	// violates its order-preserving one-vector-per-input contract.
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match input count")
	// ErrMalformedDraft is returned when the generation capability keeps
	// producing payloads that fail schema validation.
	ErrMalformedDraft = errors.New("generation returned malformed draft")
	// ErrShoppingRequestNotFound is returned when a regeneration request
	// id resolves to nothing (expired or never created).
	ErrShoppingRequestNotFound = errors.New("shopping regeneration request not found")
)
