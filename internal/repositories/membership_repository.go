package repositories

import "dojo/internal/models"

// MembershipRepository defines the interface for the user↔dojo join relation.
type MembershipRepository interface {
	// Create inserts a single membership. A (user_id, dojo_id) collision
	// surfaces as *UniqueViolationError with constraint models.MembershipPK.
	Create(m *models.Membership) error
	// CreateBatch inserts all memberships in one statement and returns the
	// number of inserted rows. The statement is all-or-nothing: a PK
	// collision fails the whole batch with *UniqueViolationError.
	CreateBatch(ms []models.Membership) (int64, error)
	// Get returns (nil, nil) when the user holds no membership in the dojo.
	Get(dojoID, userID uint) (*models.Membership, error)
	// GetByDojoAndUsers returns the memberships that already tie any of the
	// given users to the dojo.
	GetByDojoAndUsers(dojoID uint, userIDs []uint) ([]models.Membership, error)
}
