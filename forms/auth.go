package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterForm is the body of POST /auth/register.
type RegisterForm struct {
	Username    string `json:"userName" binding:"required,min=3,max=50,username"`
	Email       string `json:"email" binding:"required,email,max=255"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
	FullName    string `json:"fullName" binding:"required,max=255"`
	DateOfBirth string `json:"dateOfBirth" binding:"omitempty,birthdate"`
	PhoneNumber string `json:"phoneNumber" binding:"omitempty,max=64"`
	Address     string `json:"address" binding:"omitempty,max=512"`
}

// LoginForm is the body of POST /auth/login.
type LoginForm struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required,max=255"`
	Password        string `json:"password" binding:"required,max=72"`
}

// RefreshForm is the body of POST /auth/refresh-token.
type RefreshForm struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutForm is the optional body of POST /auth/logout.
type LogoutForm struct {
	RefreshToken string `json:"refreshToken"`
}

// ProfileForm is the body of PUT /api/profile.
type ProfileForm struct {
	FullName    string `json:"fullName" binding:"required,max=255"`
	DateOfBirth string `json:"dateOfBirth" binding:"omitempty,birthdate"`
	PhoneNumber string `json:"phoneNumber" binding:"omitempty,max=64"`
	Address     string `json:"address" binding:"omitempty,max=512"`
}

// PasswordForm is the body of PUT /api/profile/password.
type PasswordForm struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6,max=72,nefield=CurrentPassword"`
}

// ParseDate accepts YYYY-MM-DD or RFC 3339. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}

// Message turns a binding error into a message fit for clients.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldMessage(verrs[0])
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	}
	if errors.Is(err, io.EOF) {
		return "Request body is required"
	}
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return "Unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	}
	return "Invalid request"
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Please enter your %s", field)
	case "email":
		return "Please enter a valid email"
	case "username":
		return "Username may contain letters, digits, dots, dashes and underscores only"
	case "birthdate":
		return "Date of birth must be a past date formatted as YYYY-MM-DD"
	case "min":
		return fmt.Sprintf("%s should be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s should be at most %s characters", field, fe.Param())
	case "nefield":
		return "The new password must differ from the current one"
	default:
		return "Something went wrong, please try again later"
	}
}

var jsonNames = map[string]string{
	"Username":        "userName",
	"UsernameOrEmail": "usernameOrEmail",
	"FullName":        "fullName",
	"DateOfBirth":     "dateOfBirth",
	"PhoneNumber":     "phoneNumber",
	"RefreshToken":    "refreshToken",
	"CurrentPassword": "currentPassword",
	"NewPassword":     "newPassword",
}

func jsonName(field string) string {
	if n, ok := jsonNames[field]; ok {
		return n
	}
	return strings.ToLower(field)
}
