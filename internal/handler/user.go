package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jamsession/api/internal/middleware"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/service"
	"github.com/jamsession/api/pkg/response"
)

type UserHandler struct {
	service   *service.UserService
	validator *validator.Validate
}

func NewUserHandler(svc *service.UserService, v *validator.Validate) *UserHandler {
	return &UserHandler{
		service:   svc,
		validator: v,
	}
}

// Register handles POST /auth/register
func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	user, err := h.service.Register(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Created(c, model.NewUserResponse(user))
}

// Login handles POST /auth/login
func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Login(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, result)
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, model.NewUserResponse(user))
}

// Get handles GET /api/users/:userId
func (h *UserHandler) Get(c *fiber.Ctx) error {
	userID, ok := idParam(c, "userId")
	if !ok {
		return response.ValidationError(c, "User ID is required", nil)
	}

	user, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return response.OK(c, model.NewUserResponse(user))
}
