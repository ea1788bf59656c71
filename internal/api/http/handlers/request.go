package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/itsm-core/incident-engine/internal/auth"
	"github.com/itsm-core/incident-engine/internal/service"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON parses the body into out and runs struct validation.
func bindJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return validateStruct(out)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	first := verrs[0]
	field := strings.TrimPrefix(first.Namespace(), reflect.Indirect(reflect.ValueOf(v)).Type().Name()+".")
	return apperrors.NewValidationError("validation failed", map[string]any{
		"field": field,
		"rule":  first.Tag(),
	})
}

// actorFrom builds the service actor from the authenticated principal.
func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal == nil {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{ID: principal.MemberID, OrgID: principal.OrgID}, nil
}
