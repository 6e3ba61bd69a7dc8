package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fintrack/forms"
	"fintrack/pkg/auth"
	"fintrack/pkg/token"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type server struct {
	auth  *auth.Service
	codec *token.Codec
}

// response is the envelope of every API reply.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func newRouter(s *server, logger *slog.Logger) *gin.Engine {
	binding.Validator = new(forms.DefaultValidator)
	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.New(requestid.WithCustomHeaderStrKey("X-Request-Id")))
	r.Use(slogMiddleware(logger))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	setupRoutes(r, s)
	return r
}

func setupRoutes(r *gin.Engine, s *server) {
	r.GET("/health", healthHandler)

	public := r.Group("/auth")
	public.POST("/register", s.registerHandler)
	public.POST("/login", s.loginHandler)
	public.POST("/refresh-token", s.refreshHandler)

	gated := r.Group("/auth")
	gated.Use(s.authMiddleware())
	gated.POST("/logout", s.logoutHandler)
	gated.GET("/verify", s.verifyHandler)

	api := r.Group("/api")
	api.Use(s.authMiddleware())
	api.GET("/profile", s.getProfileHandler)
	api.PUT("/profile", s.updateProfileHandler)
	api.PUT("/profile/password", s.changePasswordHandler)
	api.GET("/accounts/default", s.defaultAccountHandler)
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, response{Success: false, Message: message})
}

// failErr translates a service error into status and message.
func failErr(c *gin.Context, err error) {
	status, message := errorStatus(err)
	fail(c, status, message)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), auth.ErrValidation.Error()+": ")
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return http.StatusBadRequest, "Username or email already registered"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username/email or password"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, auth.ErrNotFound):
		what := strings.TrimPrefix(err.Error(), auth.ErrNotFound.Error()+": ")
		if what == auth.ErrNotFound.Error() {
			return http.StatusNotFound, "Not found"
		}
		return http.StatusNotFound, strings.ToUpper(what[:1]) + what[1:] + " not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// userID returns the identity attached by authMiddleware.
func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func (s *server) getProfileHandler(c *gin.Context) {
	user, err := s.auth.Profile(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

func (s *server) updateProfileHandler(c *gin.Context) {
	var form forms.ProfileForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}
	dob, err := forms.ParseDate(form.DateOfBirth)
	if err != nil {
		fail(c, http.StatusBadRequest, "Date of birth must be a past date formatted as YYYY-MM-DD")
		return
	}
	user, err := s.auth.UpdateProfile(c.Request.Context(), userID(c), auth.ProfileInput{
		FullName:    form.FullName,
		DateOfBirth: dob,
		PhoneNumber: form.PhoneNumber,
		Address:     form.Address,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}

func (s *server) changePasswordHandler(c *gin.Context) {
	var form forms.PasswordForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}
	if err := s.auth.ChangePassword(c.Request.Context(), userID(c), form.CurrentPassword, form.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Success: true, Message: "Password changed, please log in again"})
}

func (s *server) defaultAccountHandler(c *gin.Context) {
	account, err := s.auth.DefaultAccount(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"account": account})
}
