package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jamsession/api/internal/apperr"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/pkg/response"
	"github.com/rs/zerolog/log"
)

// NewValidator returns a validator that also understands the jamrole tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("jamrole", func(fl validator.FieldLevel) bool {
		return role.IsValid(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register jamrole validation: %v", err))
	}
	return v
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// writeError renders an engine error with the status its kind maps to.
func writeError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
		return response.ServiceError(c, "Internal server error")
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		return response.ValidationError(c, appErr.Reason, nil)
	case apperr.KindNotFound:
		return response.NotFound(c, appErr.Reason)
	case apperr.KindForbidden:
		return response.Forbidden(c, appErr.Reason)
	case apperr.KindInvalidState:
		return response.InvalidState(c, appErr.Reason)
	case apperr.KindConflict:
		return response.Conflict(c, appErr.Reason, string(appErr.Conflict))
	}
	return response.ServiceError(c, appErr.Reason)
}

// dryRun reports whether the caller only wants the guards evaluated.
func dryRun(c *fiber.Ctx) bool {
	return c.QueryBool("dryRun", false)
}

func validated(c *fiber.Ctx, action string) error {
	return response.OK(c, model.ValidationResponse{Valid: true, Action: action})
}

func idParam(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
