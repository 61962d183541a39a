package handlers

import (
	"errors"
	"log"
	"strconv"

	"dojo/internal/models"
	"dojo/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// DojoHandler handles HTTP requests for dojos and their memberships. All of
// its routes require a session.
type DojoHandler struct {
	dojoService *services.DojoService
	validate    *validator.Validate
}

// NewDojoHandler creates a new DojoHandler.
func NewDojoHandler(dojoService *services.DojoService) *DojoHandler {
	return &DojoHandler{
		dojoService: dojoService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the dojo routes with the Fiber app.
func (h *DojoHandler) RegisterRoutes(router fiber.Router) {
	dojoRoutes := router.Group("/dojos")
	dojoRoutes.Post("/", h.HandleCreateDojo)
	dojoRoutes.Get("/:id", h.HandleGetDojoByID)
	dojoRoutes.Patch("/:id", h.HandleUpdateDojo)
	dojoRoutes.Post("/:id/members", h.HandleAddMembers)
}

// CreateDojoRequest represents the request body for creating a dojo.
type CreateDojoRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// HandleCreateDojo creates a dojo with the session user as its master.
func (h *DojoHandler) HandleCreateDojo(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Missing session user",
		})
	}

	var req CreateDojoRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing create dojo request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  formatValidationErrors(err),
		})
	}

	dojo, err := h.dojoService.Create(req.Name, userID)
	if err != nil {
		log.Printf("Error creating dojo %q for user %d: %v", req.Name, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not create dojo",
			"error":   err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(dojo)
}

// HandleGetDojoByID retrieves a single dojo by its ID.
func (h *DojoHandler) HandleGetDojoByID(c *fiber.Ctx) error {
	dojoID, err := parseDojoID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid dojo ID",
		})
	}

	dojo, err := h.dojoService.GetDojoByID(dojoID)
	if err != nil {
		log.Printf("Error getting dojo %d: %v", dojoID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve dojo",
			"error":   err.Error(),
		})
	}
	if dojo == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Dojo not found",
		})
	}
	return c.JSON(dojo)
}

// UpdateDojoRequest represents the request body for renaming a dojo.
type UpdateDojoRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// HandleUpdateDojo renames a dojo. Only a teacher of the dojo may rename it.
func (h *DojoHandler) HandleUpdateDojo(c *fiber.Ctx) error {
	dojoID, err := parseDojoID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid dojo ID",
		})
	}

	var req UpdateDojoRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing update dojo request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  formatValidationErrors(err),
		})
	}

	if ok, resp := h.requireTeacher(c, dojoID); !ok {
		return resp
	}

	dojo, err := h.dojoService.Update(dojoID, req.Name)
	if err != nil {
		log.Printf("Error updating dojo %d: %v", dojoID, err)
		if errors.Is(err, services.ErrDojoNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Dojo not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not update dojo",
			"error":   err.Error(),
		})
	}
	return c.JSON(dojo)
}

// MemberInput is one member entry in a batch enrollment request.
type MemberInput struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=student teacher"`
}

// AddMembersRequest represents the request body for batch enrollment. An
// empty member list is a valid no-op.
type AddMembersRequest struct {
	Members []MemberInput `json:"members" validate:"omitempty,dive"`
}

// HandleAddMembers enrolls a batch of members by email, creating ghost
// accounts as needed. Only a teacher of the dojo may enroll members.
func (h *DojoHandler) HandleAddMembers(c *fiber.Ctx) error {
	dojoID, err := parseDojoID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid dojo ID",
		})
	}

	var req AddMembersRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing add members request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  formatValidationErrors(err),
		})
	}

	if ok, resp := h.requireTeacher(c, dojoID); !ok {
		return resp
	}

	entries := make([]services.EmailEntry, 0, len(req.Members))
	for _, m := range req.Members {
		entries = append(entries, services.EmailEntry{Email: m.Email, Role: models.Role(m.Role)})
	}

	memberships, err := h.dojoService.AddUsersByEmails(dojoID, entries)
	if err != nil {
		log.Printf("Error adding members to dojo %d: %v", dojoID, err)
		if errors.Is(err, services.ErrAlreadyAddedToDojo) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": "Batch enrollment rejected",
				"error":   err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not add members",
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Members added successfully",
		"memberships": memberships,
	})
}

// requireTeacher verifies the session user holds the teacher role in the
// dojo. When access is denied it writes the response and returns ok=false.
func (h *DojoHandler) requireTeacher(c *fiber.Ctx, dojoID uint) (bool, error) {
	userID, sessionOK := c.Locals("user_id").(uint)
	if !sessionOK {
		return false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Missing session user",
		})
	}

	isTeacher, err := h.dojoService.HasRole(dojoID, userID, models.RoleTeacher)
	if err != nil {
		if errors.Is(err, services.ErrDojoNotFound) {
			// No membership for the caller; existence of the dojo is not
			// revealed to non-members.
			return false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Dojo not found",
			})
		}
		log.Printf("Error checking teacher role for user %d in dojo %d: %v", userID, dojoID, err)
		return false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not verify role",
			"error":   err.Error(),
		})
	}
	if !isTeacher {
		return false, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "Teacher role required",
		})
	}
	return true, nil
}

// parseDojoID parses the :id route parameter.
func parseDojoID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
