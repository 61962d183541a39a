package repositories

import "dojo/internal/models"

// DojoRepository defines the interface for dojo data access.
type DojoRepository interface {
	// Create inserts the dojo and fills in the assigned ID.
	Create(dojo *models.Dojo) error
	// GetByID returns (nil, nil) when no dojo matches.
	GetByID(id uint) (*models.Dojo, error)
	// UpdateName renames the dojo and returns the updated row, or (nil, nil)
	// when no dojo matches.
	UpdateName(id uint, name string) (*models.Dojo, error)
}
