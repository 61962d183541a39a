package services

import "errors"

// Domain errors. The transport layer maps these to client-facing status
// codes with errors.Is; anything else bubbling out of a service is an
// infrastructure failure and stays untranslated.
var (
	// ErrEmailTaken means sign-up collided with an existing account
	// (email uniqueness is case-insensitive).
	ErrEmailTaken = errors.New("email taken")

	// ErrUserNotExists means no account matches the given email or ID.
	ErrUserNotExists = errors.New("user does not exist")

	// ErrIncorrectPassword means the password did not match the stored hash.
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrUserHasNoPassword means the account is a ghost: it was provisioned
	// by dojo enrollment and has never signed up.
	ErrUserHasNoPassword = errors.New("user has no password")

	// ErrAlreadyAddedToDojo means at least one user in the batch already
	// holds a membership in the target dojo. The whole batch is rejected.
	ErrAlreadyAddedToDojo = errors.New("user already added to dojo")

	// ErrDojoNotFound means the dojo, or the queried membership in it, does
	// not exist.
	ErrDojoNotFound = errors.New("dojo not found")
)
