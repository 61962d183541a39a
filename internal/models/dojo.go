package models

// Dojo is a tenant/organization. Master is the user who created it; the
// creator is enrolled as a teacher in the same transaction that inserts the
// dojo row.
type Dojo struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Name   string `json:"name" gorm:"type:text;not null" validate:"required,min=1,max=100"`
	Master uint   `json:"master" gorm:"not null"`
}
