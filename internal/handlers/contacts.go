package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/logger"
)

// ContactDirectory is the name registry managed by ContactsHandler.
type ContactDirectory interface {
	Names() map[string]string
	GetName(raw string) string
	SetName(ctx context.Context, raw, name string) error
	RemoveName(ctx context.Context, raw string) error
}

// ContactsHandler manages display names for phone numbers.
type ContactsHandler struct {
	directory ContactDirectory
	logger    *slog.Logger
}

// SetNameRequest is the body for POST /api/contacts/:phone/name.
type SetNameRequest struct {
	Name string `json:"name"`
}

// ContactNameResponse describes one phone to name mapping.
type ContactNameResponse struct {
	Status      string `json:"status,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
}

// NewContactsHandler creates a contacts handler.
func NewContactsHandler(log *slog.Logger, directory ContactDirectory) *ContactsHandler {
	return &ContactsHandler{
		directory: directory,
		logger:    logger.OrDiscard(log).With(slog.String("handler", "contacts")),
	}
}

// Register mounts the contact name routes.
func (h *ContactsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/contacts")
	group.GET("/names", h.ListNames)
	group.GET("/:phone/name", h.GetName)
	group.POST("/:phone/name", h.SetName)
	group.DELETE("/:phone/name", h.RemoveName)
}

// ListNames godoc
// @Summary List contact names
// @Tags contacts
// @Success 200 {object} map[string]map[string]string
// @Router /api/contacts/names [get]
func (h *ContactsHandler) ListNames(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"contact_names": h.directory.Names()})
}

// GetName returns the display name for a number, or the number itself.
func (h *ContactsHandler) GetName(c echo.Context) error {
	phone, err := requirePhone(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ContactNameResponse{PhoneNumber: phone, Name: h.directory.GetName(phone)})
}

// SetName godoc
// @Summary Set contact name
// @Description Set or update the user-defined name of a phone number
// @Tags contacts
// @Param phone path string true "Phone number"
// @Param payload body SetNameRequest true "Name"
// @Success 200 {object} ContactNameResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/contacts/{phone}/name [post]
func (h *ContactsHandler) SetName(c echo.Context) error {
	phone, err := requirePhone(c)
	if err != nil {
		return err
	}
	var req SetNameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name cannot be empty")
	}
	if err := h.directory.SetName(c.Request().Context(), phone, name); err != nil {
		if errors.Is(err, contacts.ErrEmptyName) || errors.Is(err, contacts.ErrInvalidKey) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ContactNameResponse{Status: "success", PhoneNumber: phone, Name: name})
}

// RemoveName drops the stored name so the number is shown as is.
func (h *ContactsHandler) RemoveName(c echo.Context) error {
	phone, err := requirePhone(c)
	if err != nil {
		return err
	}
	if err := h.directory.RemoveName(c.Request().Context(), phone); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ContactNameResponse{Status: "success", PhoneNumber: phone})
}
