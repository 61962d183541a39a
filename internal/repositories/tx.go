package repositories

import "gorm.io/gorm"

// Repositories bundles the per-entity repositories bound to one data source,
// either the shared connection pool or a single transaction.
type Repositories struct {
	Users       UserRepository
	Dojos       DojoRepository
	Memberships MembershipRepository
}

// TxManager runs a unit of work inside one database transaction. The
// repositories handed to fn are bound to that transaction; the transaction
// commits when fn returns nil and rolls back on any error (or panic).
type TxManager interface {
	Do(fn func(repos Repositories) error) error
}

// NewGORMRepositories builds a Repositories set bound to the given handle.
func NewGORMRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:       NewGORMUserRepository(db),
		Dojos:       NewGORMDojoRepository(db),
		Memberships: NewGORMMembershipRepository(db),
	}
}

// GORMTxManager is a TxManager over gorm's transaction support.
type GORMTxManager struct {
	db *gorm.DB
}

// NewGORMTxManager creates a new instance of GORMTxManager.
func NewGORMTxManager(db *gorm.DB) *GORMTxManager {
	return &GORMTxManager{
		db: db,
	}
}

// Do executes fn within a single transaction.
func (m *GORMTxManager) Do(fn func(repos Repositories) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewGORMRepositories(tx))
	})
}
