package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itsm-core/incident-engine/internal/api/dto"
	"github.com/itsm-core/incident-engine/internal/service"
)

// AuthHandler exposes member login.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	member, token, exp, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"member": dto.NewMemberResponse(member),
			"auth":   dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
