package repositories

import "dojo/internal/models"

// UserRepository defines the interface for user data access. Lookups return
// (nil, nil) when no row matches; absence is not an error at this layer.
type UserRepository interface {
	// Create inserts the user and fills in the assigned ID. A case-insensitive
	// email collision surfaces as *UniqueViolationError with constraint
	// models.EmailUniqueIndex.
	Create(user *models.User) error
	GetByEmail(email string) (*models.User, error)
	GetByID(id uint) (*models.User, error)
	// GetByEmails returns the users whose email case-insensitively matches
	// one of the given emails. Missing emails are simply absent from the
	// result.
	GetByEmails(emails []string) ([]models.User, error)
}
