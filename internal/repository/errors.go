package repository

import "errors"

var (
	// ErrPolicyNotFound is returned when no ledger entry exists for an id.
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrPolicyExists is returned when registering an id twice.
	ErrPolicyExists = errors.New("policy already exists")
)
