package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jamsession/api/internal/middleware"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/service"
	"github.com/jamsession/api/pkg/response"
)

type JamHandler struct {
	service   *service.JamService
	validator *validator.Validate
}

func NewJamHandler(svc *service.JamService, v *validator.Validate) *JamHandler {
	return &JamHandler{
		service:   svc,
		validator: v,
	}
}

// Roles handles GET /api/roles
func (h *JamHandler) Roles(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"roles": role.Catalog()})
}

// Create handles POST /api/jams
func (h *JamHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJamRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Invalid creation data", formatValidationErrors(err))
	}

	actor := middleware.GetActor(c)
	if dryRun(c) {
		if err := h.service.ValidateCreate(c.UserContext(), actor, &req); err != nil {
			return writeError(c, err)
		}
		return validated(c, "create")
	}

	jam, err := h.service.Create(c.UserContext(), actor, &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Created(c, jam)
}

// List returns a handler for GET /api/jams/{pending,active,past}
func (h *JamHandler) List(status model.JamStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		jams, err := h.service.ListByStatus(c.UserContext(), status)
		if err != nil {
			return writeError(c, err)
		}
		return response.OK(c, model.JamListResponse{Status: status, Jams: jams})
	}
}

// Get handles GET /api/jams/:jamId
func (h *JamHandler) Get(c *fiber.Ctx) error {
	jamID, ok := idParam(c, "jamId")
	if !ok {
		return response.ValidationError(c, "Jam ID is required", nil)
	}

	detail, err := h.service.Detail(c.UserContext(), middleware.GetActor(c), jamID)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, detail)
}

// RequireJam rejects requests for jams that do not exist and stores the
// parsed id under the jamId local.
func (h *JamHandler) RequireJam(c *fiber.Ctx) error {
	jamID, ok := idParam(c, "jamId")
	if !ok {
		return response.ValidationError(c, "Jam ID is required", nil)
	}
	if _, err := h.service.Get(c.UserContext(), jamID); err != nil {
		return writeError(c, err)
	}
	c.Locals("jamId", jamID)
	return c.Next()
}

// PossibleRoles handles GET /api/jams/:jamId/roles
func (h *JamHandler) PossibleRoles(c *fiber.Ctx) error {
	jamID, ok := idParam(c, "jamId")
	if !ok {
		return response.ValidationError(c, "Jam ID is required", nil)
	}

	roles, err := h.service.PossibleRoles(c.UserContext(), middleware.GetActor(c), jamID)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, fiber.Map{"possibleRoles": roles})
}

// Join handles POST /api/jams/:jamId/join
func (h *JamHandler) Join(c *fiber.Ctx) error {
	jamID, ok := idParam(c, "jamId")
	if !ok {
		return response.ValidationError(c, "Jam ID is required", nil)
	}

	var req model.JoinJamRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	if req.JoinType == "" {
		req.JoinType = model.JoinType(c.Query("joinType"))
	}
	if req.ChosenRole == "" {
		req.ChosenRole = c.Query("chosenRole")
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Invalid join request", formatValidationErrors(err))
	}

	actor := middleware.GetActor(c)
	if dryRun(c) {
		if err := h.service.ValidateJoin(c.UserContext(), actor, jamID, &req); err != nil {
			return writeError(c, err)
		}
		return validated(c, "join")
	}

	jam, err := h.service.Join(c.UserContext(), actor, jamID, &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, jam)
}

// Leave handles POST /api/jams/:jamId/leave
func (h *JamHandler) Leave(c *fiber.Ctx) error {
	return h.transition(c, "leave", h.service.ValidateLeave, h.service.Leave)
}

// Start handles POST /api/jams/:jamId/start
func (h *JamHandler) Start(c *fiber.Ctx) error {
	return h.transition(c, "start", h.service.ValidateStart, h.service.Start)
}

// End handles POST /api/jams/:jamId/end
func (h *JamHandler) End(c *fiber.Ctx) error {
	return h.transition(c, "end", h.service.ValidateEnd, h.service.End)
}

// RecordHistory handles POST /api/jams/:jamId/history
func (h *JamHandler) RecordHistory(c *fiber.Ctx) error {
	return h.transition(c, "recordHistory", h.service.ValidateRecordHistory, h.service.RecordHistory)
}

// Delete handles DELETE /api/jams/:jamId
func (h *JamHandler) Delete(c *fiber.Ctx) error {
	jamID, ok := idParam(c, "jamId")
	if !ok {
		return response.ValidationError(c, "Jam ID is required", nil)
	}

	actor := middleware.GetActor(c)
	if dryRun(c) {
		if err := h.service.ValidateDelete(c.UserContext(), actor, jamID); err != nil {
			return writeError(c, err)
		}
		return validated(c, "delete")
	}

	if err := h.service.Delete(c.UserContext(), actor, jamID); err != nil {
		return writeError(c, err)
	}

	return response.NoContent(c)
}

// transition runs one host or participant action on the jam in the path.
func (h *JamHandler) transition(
	c *fiber.Ctx,
	action string,
	check func(context.Context, model.Actor, int64) error,
	apply func(context.Context, model.Actor, int64) (*model.Jam, error),
) error {
	jamID, ok := idParam(c, "jamId")
	if !ok {
		return response.ValidationError(c, "Jam ID is required", nil)
	}

	actor := middleware.GetActor(c)
	if dryRun(c) {
		if err := check(c.UserContext(), actor, jamID); err != nil {
			return writeError(c, err)
		}
		return validated(c, action)
	}

	jam, err := apply(c.UserContext(), actor, jamID)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, jam)
}
