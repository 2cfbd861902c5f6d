package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/whatsapp"
)

func parseIntOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func credentials(token, phoneNumberID string) whatsapp.Credentials {
	return whatsapp.Credentials{
		AccessToken:   strings.TrimSpace(token),
		PhoneNumberID: strings.TrimSpace(phoneNumberID),
	}
}

// requirePhone reads the :phone path parameter and rejects values without digits.
func requirePhone(c echo.Context) (string, error) {
	phone := strings.TrimSpace(c.Param("phone"))
	if contacts.Normalize(phone) == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "phone number is required")
	}
	return phone, nil
}
