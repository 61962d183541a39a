package models

// User represents an account. Password is a bcrypt hash; a nil password marks
// a "ghost" account that was provisioned by dojo enrollment before the person
// ever signed up.
type User struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	Email    string  `json:"email" gorm:"type:varchar(255);not null" validate:"required,email"`
	Password *string `json:"-" gorm:"type:varchar(255)"` // No json tag exposure for security
}

// EmailUniqueIndex is the case-insensitive unique index on users.email.
// It cannot be expressed as a GORM tag (expression index on lower(email)),
// so main.go creates it with raw SQL after migration.
const EmailUniqueIndex = "email_unique_index"

// IsGhost reports whether the account has no password set.
func (u *User) IsGhost() bool {
	return u.Password == nil
}
