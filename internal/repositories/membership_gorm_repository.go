package repositories

import (
	"errors"
	"fmt"

	"dojo/internal/models"

	"gorm.io/gorm"
)

// GORMMembershipRepository is a GORM implementation of MembershipRepository.
type GORMMembershipRepository struct {
	db *gorm.DB
}

// NewGORMMembershipRepository creates a new instance of GORMMembershipRepository.
func NewGORMMembershipRepository(db *gorm.DB) *GORMMembershipRepository {
	return &GORMMembershipRepository{
		db: db,
	}
}

// Create inserts a single membership row.
func (r *GORMMembershipRepository) Create(m *models.Membership) error {
	if err := r.db.Create(m).Error; err != nil {
		return translateUnique(err, models.MembershipPK)
	}
	return nil
}

// CreateBatch inserts all memberships with one multi-row insert.
func (r *GORMMembershipRepository) CreateBatch(ms []models.Membership) (int64, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	res := r.db.Create(&ms)
	if res.Error != nil {
		return 0, translateUnique(res.Error, models.MembershipPK)
	}
	return res.RowsAffected, nil
}

// Get retrieves the membership row for (dojoID, userID).
func (r *GORMMembershipRepository) Get(dojoID, userID uint) (*models.Membership, error) {
	var m models.Membership
	if err := r.db.First(&m, "dojo_id = ? AND user_id = ?", dojoID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership for dojo %d, user %d: %w", dojoID, userID, err)
	}
	return &m, nil
}

// GetByDojoAndUsers retrieves existing memberships in the dojo for any of the
// given users.
func (r *GORMMembershipRepository) GetByDojoAndUsers(dojoID uint, userIDs []uint) ([]models.Membership, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ms []models.Membership
	if err := r.db.Where("dojo_id = ? AND user_id IN ?", dojoID, userIDs).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to get memberships for dojo %d: %w", dojoID, err)
	}
	return ms, nil
}
