package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// UniqueViolationError is the structured conflict descriptor returned by the
// GORM repositories when an insert trips a unique constraint. Services branch
// on Constraint to decide which domain conflict occurred; they never inspect
// driver error strings.
type UniqueViolationError struct {
	Constraint string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %s violated", e.Constraint)
}

// IsUniqueViolation reports whether err is a unique violation on the given
// constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var uv *UniqueViolationError
	return errors.As(err, &uv) && uv.Constraint == constraint
}

// translateUnique maps GORM's translated duplicate-key error to a
// UniqueViolationError for the named constraint. Each insert statement in this
// package targets exactly one unique constraint, so the repository knows which
// one fired without asking the driver. Requires gorm.Config.TranslateError.
func translateUnique(err error, constraint string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &UniqueViolationError{Constraint: constraint}
	}
	return err
}
