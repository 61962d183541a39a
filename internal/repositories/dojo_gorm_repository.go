package repositories

import (
	"errors"
	"fmt"

	"dojo/internal/models"

	"gorm.io/gorm"
)

// GORMDojoRepository is a GORM implementation of DojoRepository.
type GORMDojoRepository struct {
	db *gorm.DB
}

// NewGORMDojoRepository creates a new instance of GORMDojoRepository.
func NewGORMDojoRepository(db *gorm.DB) *GORMDojoRepository {
	return &GORMDojoRepository{
		db: db,
	}
}

// Create inserts a new dojo and lets the database assign the ID.
func (r *GORMDojoRepository) Create(dojo *models.Dojo) error {
	if err := r.db.Create(dojo).Error; err != nil {
		return fmt.Errorf("failed to create dojo: %w", err)
	}
	return nil
}

// GetByID retrieves a dojo by its ID.
func (r *GORMDojoRepository) GetByID(id uint) (*models.Dojo, error) {
	var dojo models.Dojo
	if err := r.db.First(&dojo, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dojo by ID %d: %w", id, err)
	}
	return &dojo, nil
}

// UpdateName renames a dojo. GORM's Update does not report missing rows as
// ErrRecordNotFound, so absence is detected through RowsAffected.
func (r *GORMDojoRepository) UpdateName(id uint, name string) (*models.Dojo, error) {
	res := r.db.Model(&models.Dojo{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update dojo %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(id)
}
