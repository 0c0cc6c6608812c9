package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/services"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler serves the resident and staff account endpoints under
// /api/auth. Every call is scoped to the tenant resolved from X-App-ID.
type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	resp, err := h.authService.Register(c.UserContext(), tenant.GetAppID(c), &req)
	if err != nil {
		return authFail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	resp, err := h.authService.Login(c.UserContext(), tenant.GetAppID(c), &req)
	if err != nil {
		return authFail(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return invalidBody(c)
	}
	resp, err := h.authService.Refresh(c.UserContext(), tenant.GetAppID(c), &req)
	if err != nil {
		return authFail(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.authService.Logout(c.UserContext(), tenant.GetAppID(c), &req); err != nil {
		return authFail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

// DeleteAccount removes the caller's account. Reports they filed stay
// public with no creator.
func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	var req dto.DeleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.authService.DeleteAccount(c.UserContext(), tenant.GetAppID(c), userID, req.Password); err != nil {
		return authFail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Account deleted successfully"})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid request body"})
}

func authFail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, services.ErrWeakCredentials), errors.Is(err, services.ErrPasswordRequired):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrEmailTaken):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		status, msg = fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrUserNotFound):
		status, msg = fiber.StatusNotFound, "User not found"
	}

	if status >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "auth request failed",
			"app_id", tenant.GetAppID(c), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}
