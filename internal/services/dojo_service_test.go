package services_test

import (
	"fmt"
	"testing"

	"dojo/internal/models"
	"dojo/internal/repositories"
	"dojo/internal/services"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupDojoService builds a DojoService against a fresh in-memory SQLite
// database so the reconciliation algorithm runs against real transactions and
// real unique constraints. Each test gets its own database.
func setupDojoService(t *testing.T) (*gorm.DB, repositories.Repositories, *services.DojoService) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Dojo{}, &models.Membership{})
	assert.NoError(t, err)
	err = db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + models.EmailUniqueIndex + " ON users (lower(email))").Error
	assert.NoError(t, err)

	repos := repositories.NewGORMRepositories(db)
	svc := services.NewDojoService(repos, repositories.NewGORMTxManager(db), nil)
	return db, repos, svc
}

// seedUser inserts a real (non-ghost) account.
func seedUser(t *testing.T, repos repositories.Repositories, email string) *models.User {
	t.Helper()
	hash := "$2a$10$seeded.hash.for.tests.only"
	user := &models.User{Email: email, Password: &hash}
	assert.NoError(t, repos.Users.Create(user))
	return user
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	assert.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestDojoService_CreateGrantsTeacherRole(t *testing.T) {
	_, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)
	assert.NotZero(t, dojo.ID)
	assert.Equal(t, master.ID, dojo.Master)

	isTeacher, err := svc.HasRole(dojo.ID, master.ID, models.RoleTeacher)
	assert.NoError(t, err)
	assert.True(t, isTeacher)

	// Same membership, different role: false, not an error.
	isStudent, err := svc.HasRole(dojo.ID, master.ID, models.RoleStudent)
	assert.NoError(t, err)
	assert.False(t, isStudent)

	got, err := svc.GetDojoByID(dojo.ID)
	assert.NoError(t, err)
	assert.Equal(t, "My Dojo", got.Name)
}

func TestDojoService_HasRoleNonMember(t *testing.T) {
	_, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	outsider := seedUser(t, repos, "outsider@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	// The dojo exists, but the user holds no membership in it.
	_, err = svc.HasRole(dojo.ID, outsider.ID, models.RoleStudent)
	assert.ErrorIs(t, err, services.ErrDojoNotFound)
}

func TestDojoService_Update(t *testing.T) {
	_, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")

	dojo, err := svc.Create("Old Name", master.ID)
	assert.NoError(t, err)

	updated, err := svc.Update(dojo.ID, "New Name")
	assert.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)

	got, err := svc.GetDojoByID(dojo.ID)
	assert.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)

	_, err = svc.Update(dojo.ID+999, "No Such Dojo")
	assert.ErrorIs(t, err, services.ErrDojoNotFound)
}

func TestDojoService_GetDojoByIDAbsent(t *testing.T) {
	_, _, svc := setupDojoService(t)

	dojo, err := svc.GetDojoByID(12345)
	assert.NoError(t, err)
	assert.Nil(t, dojo)
}

func TestDojoService_AddUsersByIDs(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	student := seedUser(t, repos, "student@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	err = svc.AddUsersByIDs(dojo.ID, []services.MemberEntry{
		{UserID: student.ID, Role: models.RoleStudent},
	})
	assert.NoError(t, err)

	// Repeating the identical call is rejected, and the first membership is
	// unaffected.
	err = svc.AddUsersByIDs(dojo.ID, []services.MemberEntry{
		{UserID: student.ID, Role: models.RoleStudent},
	})
	assert.ErrorIs(t, err, services.ErrAlreadyAddedToDojo)

	isStudent, err := svc.HasRole(dojo.ID, student.ID, models.RoleStudent)
	assert.NoError(t, err)
	assert.True(t, isStudent)
	assert.Equal(t, int64(2), countRows(t, db, &models.Membership{})) // teacher + student
}

func TestDojoService_AddUsersByEmailsEmpty(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	memberships, err := svc.AddUsersByEmails(dojo.ID, nil)
	assert.NoError(t, err)
	assert.Empty(t, memberships)
	assert.Equal(t, int64(1), countRows(t, db, &models.User{}))
	assert.Equal(t, int64(1), countRows(t, db, &models.Membership{}))
}

func TestDojoService_AddUsersByEmailsMixed(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	seedUser(t, repos, "s1@test.e2e")
	seedUser(t, repos, "s2@test.e2e")
	seedUser(t, repos, "s3@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	batch := []services.EmailEntry{
		{Email: "s1@test.e2e", Role: models.RoleStudent},
		{Email: "s2@test.e2e", Role: models.RoleStudent},
		{Email: "s3@test.e2e", Role: models.RoleStudent},
		{Email: "s4@test.e2e", Role: models.RoleStudent},
		{Email: "s5@test.e2e", Role: models.RoleStudent},
	}
	memberships, err := svc.AddUsersByEmails(dojo.ID, batch)
	assert.NoError(t, err)
	assert.Len(t, memberships, 5)
	for _, m := range memberships {
		assert.Equal(t, dojo.ID, m.DojoID)
		assert.Equal(t, models.RoleStudent, m.Role)
	}

	// Exactly the missing users were provisioned, as ghosts.
	assert.Equal(t, int64(6), countRows(t, db, &models.User{}))
	ghost, err := repos.Users.GetByEmail("s4@test.e2e")
	assert.NoError(t, err)
	assert.NotNil(t, ghost)
	assert.True(t, ghost.IsGhost())

	// Re-running the same batch is rejected by the pre-flight check, naming
	// the already-enrolled emails, and nothing is mutated.
	_, err = svc.AddUsersByEmails(dojo.ID, batch)
	assert.ErrorIs(t, err, services.ErrAlreadyAddedToDojo)
	assert.Contains(t, err.Error(), "s1@test.e2e")
	assert.Contains(t, err.Error(), "s5@test.e2e")
	assert.Equal(t, int64(6), countRows(t, db, &models.User{}))
	assert.Equal(t, int64(6), countRows(t, db, &models.Membership{})) // teacher + 5 students
}

func TestDojoService_AddUsersByEmailsRejectsWholeBatchOnConflict(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	enrolled := seedUser(t, repos, "enrolled@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)
	assert.NoError(t, svc.AddUsersByIDs(dojo.ID, []services.MemberEntry{
		{UserID: enrolled.ID, Role: models.RoleStudent},
	}))

	// One conflicting email poisons the whole batch: the fresh email must
	// neither get a ghost account nor a membership.
	_, err = svc.AddUsersByEmails(dojo.ID, []services.EmailEntry{
		{Email: "enrolled@test.e2e", Role: models.RoleStudent},
		{Email: "fresh@test.e2e", Role: models.RoleStudent},
	})
	assert.ErrorIs(t, err, services.ErrAlreadyAddedToDojo)
	assert.Contains(t, err.Error(), "enrolled@test.e2e")

	fresh, err := repos.Users.GetByEmail("fresh@test.e2e")
	assert.NoError(t, err)
	assert.Nil(t, fresh)
	assert.Equal(t, int64(2), countRows(t, db, &models.Membership{}))
}

func TestDojoService_AddUsersByEmailsCaseVariantOfExistingUser(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	alice := seedUser(t, repos, "alice@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	// A case variant of an existing account identifies that account: it gets
	// enrolled, and no ghost is provisioned for the variant spelling.
	memberships, err := svc.AddUsersByEmails(dojo.ID, []services.EmailEntry{
		{Email: "Alice@test.e2e", Role: models.RoleStudent},
	})
	assert.NoError(t, err)
	assert.Len(t, memberships, 1)
	assert.Equal(t, alice.ID, memberships[0].UserID)
	assert.Equal(t, int64(2), countRows(t, db, &models.User{}))

	isStudent, err := svc.HasRole(dojo.ID, alice.ID, models.RoleStudent)
	assert.NoError(t, err)
	assert.True(t, isStudent)
}

func TestDojoService_AddUsersByEmailsCaseVariantOfMember(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	bob := seedUser(t, repos, "bob@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)
	assert.NoError(t, svc.AddUsersByIDs(dojo.ID, []services.MemberEntry{
		{UserID: bob.ID, Role: models.RoleStudent},
	}))

	// A case variant of an enrolled member is a conflict, caught by the
	// pre-flight check and named in the error; nothing is mutated.
	_, err = svc.AddUsersByEmails(dojo.ID, []services.EmailEntry{
		{Email: "BOB@test.e2e", Role: models.RoleStudent},
	})
	assert.ErrorIs(t, err, services.ErrAlreadyAddedToDojo)
	assert.Contains(t, err.Error(), "bob@test.e2e")
	assert.Equal(t, int64(2), countRows(t, db, &models.User{}))
	assert.Equal(t, int64(2), countRows(t, db, &models.Membership{}))
}

func TestDojoService_AddUsersByEmailsDedup(t *testing.T) {
	db, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	// Duplicates differing only in case collapse to one entry; the last role
	// wins.
	memberships, err := svc.AddUsersByEmails(dojo.ID, []services.EmailEntry{
		{Email: "dup@test.e2e", Role: models.RoleStudent},
		{Email: "DUP@test.e2e", Role: models.RoleTeacher},
	})
	assert.NoError(t, err)
	assert.Len(t, memberships, 1)
	assert.Equal(t, models.RoleTeacher, memberships[0].Role)
	assert.Equal(t, int64(2), countRows(t, db, &models.User{}))

	// First-seen casing is kept for the stored ghost row.
	ghost, err := repos.Users.GetByEmail("dup@test.e2e")
	assert.NoError(t, err)
	assert.NotNil(t, ghost)
}

// interposeTxManager runs a hook before delegating the unit of work, to
// simulate a concurrent writer landing between the pre-flight check and the
// transaction.
type interposeTxManager struct {
	inner  repositories.TxManager
	before func()
}

func (m *interposeTxManager) Do(fn func(repos repositories.Repositories) error) error {
	if m.before != nil {
		m.before()
	}
	return m.inner.Do(fn)
}

func TestDojoService_AddUsersByEmailsConstraintBackstopOnRace(t *testing.T) {
	db, repos, _ := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")
	carol := seedUser(t, repos, "carol@test.e2e")

	txm := &interposeTxManager{inner: repositories.NewGORMTxManager(db)}
	svc := services.NewDojoService(repos, txm, nil)

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	// A concurrent enrollment lands after the pre-flight check passes but
	// before the mutation transaction opens.
	txm.before = func() {
		txm.before = nil
		assert.NoError(t, repos.Memberships.Create(&models.Membership{
			UserID: carol.ID,
			DojoID: dojo.ID,
			Role:   models.RoleStudent,
		}))
	}

	// The loser still gets the domain conflict, via the constraint rather
	// than the pre-flight check.
	_, err = svc.AddUsersByEmails(dojo.ID, []services.EmailEntry{
		{Email: "carol@test.e2e", Role: models.RoleStudent},
		{Email: "late-ghost@test.e2e", Role: models.RoleStudent},
	})
	assert.ErrorIs(t, err, services.ErrAlreadyAddedToDojo)

	// The rollback discarded the ghost provisioned inside the failed
	// transaction.
	ghost, err := repos.Users.GetByEmail("late-ghost@test.e2e")
	assert.NoError(t, err)
	assert.Nil(t, ghost)
	assert.Equal(t, int64(2), countRows(t, db, &models.User{}))
	assert.Equal(t, int64(2), countRows(t, db, &models.Membership{})) // teacher + raced student
}

func TestDojoService_AddUsersByEmailsInvalidRole(t *testing.T) {
	_, repos, svc := setupDojoService(t)
	master := seedUser(t, repos, "master@test.e2e")

	dojo, err := svc.Create("My Dojo", master.ID)
	assert.NoError(t, err)

	_, err = svc.AddUsersByEmails(dojo.ID, []services.EmailEntry{
		{Email: "x@test.e2e", Role: models.Role("sensei")},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}
