package models

// Role is the per-membership role within a dojo.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether the role is one of the two known values.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// MembershipPK names the composite primary key on (user_id, dojo_id). It is
// the constraint that guarantees a user holds at most one membership per dojo.
const MembershipPK = "user_dojos_pk"

// Membership is the user↔dojo↔role join row. Exactly one row per
// (user_id, dojo_id).
type Membership struct {
	UserID uint `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	DojoID uint `json:"dojo_id" gorm:"primaryKey;autoIncrement:false"`
	Role   Role `json:"role" gorm:"type:varchar(16);not null"`
}

// TableName keeps the join table under its historical name.
func (Membership) TableName() string {
	return "user_dojos"
}
