package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"dojo/internal/models"
	"dojo/internal/repositories"

	"github.com/google/uuid"
)

// EventPublisher publishes domain events to the message broker. A nil
// publisher disables eventing; publishing is always best-effort.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// MemberEntry identifies a user to enroll by ID.
type MemberEntry struct {
	UserID uint
	Role   models.Role
}

// EmailEntry identifies a user to enroll by email; the user may not exist yet.
type EmailEntry struct {
	Email string
	Role  models.Role
}

// DojoService handles business logic for dojos and their memberships.
type DojoService struct {
	repos repositories.Repositories
	tx    repositories.TxManager
	mq    EventPublisher
}

// NewDojoService creates a new DojoService. mq may be nil.
func NewDojoService(repos repositories.Repositories, tx repositories.TxManager, mq EventPublisher) *DojoService {
	return &DojoService{
		repos: repos,
		tx:    tx,
		mq:    mq,
	}
}

// Create inserts a dojo and enrolls the creator as its teacher in a single
// transaction; both rows land or neither does.
func (s *DojoService) Create(name string, creatorID uint) (*models.Dojo, error) {
	dojo := &models.Dojo{Name: name, Master: creatorID}
	err := s.tx.Do(func(r repositories.Repositories) error {
		if err := r.Dojos.Create(dojo); err != nil {
			return err
		}
		return r.Memberships.Create(&models.Membership{
			UserID: creatorID,
			DojoID: dojo.ID,
			Role:   models.RoleTeacher,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent("dojo.created", map[string]interface{}{
		"dojo_id": dojo.ID,
		"name":    dojo.Name,
		"master":  dojo.Master,
	})
	return dojo, nil
}

// Update renames a dojo.
func (s *DojoService) Update(dojoID uint, name string) (*models.Dojo, error) {
	dojo, err := s.repos.Dojos.UpdateName(dojoID, name)
	if err != nil {
		return nil, err
	}
	if dojo == nil {
		return nil, ErrDojoNotFound
	}
	return dojo, nil
}

// HasRole reports whether the user holds the given role in the dojo. It fails
// with ErrDojoNotFound when the user holds no membership at all — including
// when the dojo itself exists but the user is not a member.
func (s *DojoService) HasRole(dojoID, userID uint, role models.Role) (bool, error) {
	m, err := s.repos.Memberships.Get(dojoID, userID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, ErrDojoNotFound
	}
	return m.Role == role, nil
}

// GetDojoByID is a no-fail lookup; absence is returned as nil.
func (s *DojoService) GetDojoByID(dojoID uint) (*models.Dojo, error) {
	return s.repos.Dojos.GetByID(dojoID)
}

// AddUsersByIDs batch-inserts memberships for known user IDs with one
// statement. A (user_id, dojo_id) collision rejects the whole batch with
// ErrAlreadyAddedToDojo and leaves existing memberships untouched.
func (s *DojoService) AddUsersByIDs(dojoID uint, entries []MemberEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ms := make([]models.Membership, 0, len(entries))
	for _, e := range entries {
		if !e.Role.Valid() {
			return fmt.Errorf("invalid role: %s", e.Role)
		}
		ms = append(ms, models.Membership{UserID: e.UserID, DojoID: dojoID, Role: e.Role})
	}
	if _, err := s.repos.Memberships.CreateBatch(ms); err != nil {
		if repositories.IsUniqueViolation(err, models.MembershipPK) {
			return ErrAlreadyAddedToDojo
		}
		return err
	}
	return nil
}

// AddUsersByEmails enrolls a batch of people identified by email, creating
// ghost accounts for emails with no existing user. The whole batch is
// rejected with ErrAlreadyAddedToDojo (naming the offending emails) when any
// resolved user is already a member; otherwise ghost provisioning and the
// membership insert run in one transaction and the inserted memberships are
// returned.
func (s *DojoService) AddUsersByEmails(dojoID uint, entries []EmailEntry) ([]models.Membership, error) {
	// Deduplicate by email. The uniqueness invariant on users.email is
	// case-insensitive, so the dedup key is too: first-seen casing is kept
	// for the stored row, last role wins.
	roleByKey := make(map[string]models.Role, len(entries))
	emailByKey := make(map[string]string, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Role.Valid() {
			return nil, fmt.Errorf("invalid role: %s", e.Role)
		}
		key := strings.ToLower(e.Email)
		if _, seen := roleByKey[key]; !seen {
			keys = append(keys, key)
			emailByKey[key] = e.Email
		}
		roleByKey[key] = e.Role
	}
	// Empty input is a valid no-op; no transaction is opened.
	if len(keys) == 0 {
		return []models.Membership{}, nil
	}

	emails := make([]string, 0, len(keys))
	for _, k := range keys {
		emails = append(emails, emailByKey[k])
	}

	// Resolve which emails already have an account.
	existing, err := s.repos.Users.GetByEmails(emails)
	if err != nil {
		return nil, err
	}
	existingByKey := make(map[string]models.User, len(existing))
	emailByID := make(map[uint]string, len(existing))
	existingIDs := make([]uint, 0, len(existing))
	for _, u := range existing {
		existingByKey[strings.ToLower(u.Email)] = u
		emailByID[u.ID] = u.Email
		existingIDs = append(existingIDs, u.ID)
	}

	// Pre-flight conflict check, read-only and outside the transaction: if
	// any existing user is already a member, reject the whole batch before
	// creating a single ghost.
	conflicts, err := s.repos.Memberships.GetByDojoAndUsers(dojoID, existingIDs)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		taken := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			taken = append(taken, emailByID[c.UserID])
		}
		sort.Strings(taken)
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAddedToDojo, strings.Join(taken, ", "))
	}

	var created []models.Membership
	err = s.tx.Do(func(r repositories.Repositories) error {
		// Provision ghost accounts for the emails with no user row, keeping
		// input order for the combined list.
		members := make([]models.User, 0, len(keys))
		for _, k := range keys {
			if u, ok := existingByKey[k]; ok {
				members = append(members, u)
				continue
			}
			ghost := models.User{Email: emailByKey[k]}
			if err := r.Users.Create(&ghost); err != nil {
				return err
			}
			members = append(members, ghost)
		}
		// Invariant: every deduplicated email resolved to exactly one user.
		if len(members) != len(keys) {
			return fmt.Errorf("membership reconciliation: resolved %d members for %d emails", len(members), len(keys))
		}

		ms := make([]models.Membership, 0, len(members))
		for i, u := range members {
			ms = append(ms, models.Membership{UserID: u.ID, DojoID: dojoID, Role: roleByKey[keys[i]]})
		}
		inserted, err := r.Memberships.CreateBatch(ms)
		if err != nil {
			if repositories.IsUniqueViolation(err, models.MembershipPK) {
				// Lost a race against a concurrent enrollment between the
				// pre-flight check and this insert. The constraint stays the
				// source of truth; rolling back also discards the ghosts.
				return ErrAlreadyAddedToDojo
			}
			return err
		}
		// Invariant: the batch insert covered every member.
		if inserted != int64(len(ms)) {
			return fmt.Errorf("membership reconciliation: inserted %d of %d membership rows", inserted, len(ms))
		}
		created = ms
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent("dojo.members_added", map[string]interface{}{
		"dojo_id": dojoID,
		"count":   len(created),
	})
	return created, nil
}

// publishEvent publishes a JSON event to the broker, best-effort. Failures
// are logged and never fail the originating operation.
func (s *DojoService) publishEvent(eventType string, payload map[string]interface{}) {
	if s.mq == nil {
		return
	}
	payload["event_id"] = uuid.New().String()
	payload["event_type"] = eventType
	payload["occurred_at"] = time.Now().Format(time.RFC3339)

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", eventType, err)
		return
	}
	if err := s.mq.Publish(eventType, body); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", eventType, err)
	}
}
