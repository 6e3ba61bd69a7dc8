package main

import (
	"errors"
	"io"
	"net/http"

	"fintrack/forms"
	"fintrack/pkg/auth"

	"github.com/gin-gonic/gin"
)

func (s *server) registerHandler(c *gin.Context) {
	var form forms.RegisterForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}
	dob, err := forms.ParseDate(form.DateOfBirth)
	if err != nil {
		fail(c, http.StatusBadRequest, "Date of birth must be a past date formatted as YYYY-MM-DD")
		return
	}

	res, err := s.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username:    form.Username,
		Email:       form.Email,
		Password:    form.Password,
		FullName:    form.FullName,
		DateOfBirth: dob,
		PhoneNumber: form.PhoneNumber,
		Address:     form.Address,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{
		"user":    res.User,
		"account": res.Account,
		"token":   res.AccessToken,
	})
}

func (s *server) loginHandler(c *gin.Context) {
	var form forms.LoginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}

	sess, err := s.auth.Login(c.Request.Context(), auth.LoginInput{
		UsernameOrEmail: form.UsernameOrEmail,
		Password:        form.Password,
		UserAgent:       c.Request.UserAgent(),
		ClientIP:        c.ClientIP(),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"accessToken":  sess.AccessToken,
		"refreshToken": sess.RefreshToken,
		"user":         sess.User,
		"account":      sess.Account,
	})
}

func (s *server) refreshHandler(c *gin.Context) {
	var form forms.RefreshForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}

	pair, err := s.auth.Refresh(c.Request.Context(), form.RefreshToken)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// logoutHandler revokes the session behind the bearer token and, when the
// body names one, the session of that refresh token as well.
func (s *server) logoutHandler(c *gin.Context) {
	var form forms.LogoutForm
	if err := c.ShouldBindJSON(&form); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, forms.Message(err))
		return
	}

	ctx := c.Request.Context()
	if err := s.auth.Logout(ctx, c.GetString(ctxAccessToken)); err != nil {
		failErr(c, err)
		return
	}
	if form.RefreshToken != "" {
		if err := s.auth.Logout(ctx, form.RefreshToken); err != nil {
			failErr(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, response{Success: true, Message: "Logged out successfully"})
}

func (s *server) verifyHandler(c *gin.Context) {
	user, err := s.auth.VerifyToken(c.Request.Context(), c.GetString(ctxAccessToken))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": user})
}
