package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// AuthService is the part of service.AuthService used here.
type AuthService interface {
	Register(ctx context.Context, email, password, role string) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Refresh(ctx context.Context, raw string) (service.Session, error)
	Logout(ctx context.Context, raw string) error
	LogoutAll(ctx context.Context, userID uint64) error
	Me(ctx context.Context, userID uint64) (model.User, error)
}

// AuthHandler serves account registration and session management.
type AuthHandler struct {
	Auth AuthService
}

func NewAuthHandler(a AuthService) *AuthHandler {
	if a == nil {
		panic("nil auth service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: a}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toAuthResp(s service.Session) authResp {
	return authResp{
		User:    userPart{ID: s.User.ID, Email: s.User.Email, Role: s.User.Role},
		Access:  tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
		Refresh: tokenPart{Token: s.Refresh.Raw, Expires: s.Refresh.Exp},
	}
}

// Register handles POST /v1/auth/register and signs the new user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	s, err := h.Auth.Register(c.Request().Context(), req.Email, req.Password, req.Role)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(s))
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	s, err := h.Auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(s))
}

// Refresh handles POST /v1/auth/refresh.  The presented refresh token is
// rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "refresh_token required")
	}
	s, err := h.Auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(s))
}

// Logout handles POST /v1/auth/logout.  With a refresh_token in the body
// only that session ends.  Without one, an authenticated caller is logged
// out everywhere.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	ctx := c.Request().Context()
	if req.RefreshToken != "" {
		if err := h.Auth.Logout(ctx, req.RefreshToken); err != nil {
			return writeAuthError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	userID, err := getUserID(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "provide a bearer token or refresh_token")
	}
	if err := h.Auth.LogoutAll(ctx, userID); err != nil {
		return writeAuthError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me handles GET /v1/me.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return writeError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	u, err := h.Auth.Me(c.Request().Context(), userID)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

func writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrWeakPassword):
		return writeError(c, http.StatusBadRequest, codeWeakPassword, err.Error())
	case errors.Is(err, model.ErrEmailTaken):
		return writeError(c, http.StatusConflict, codeEmailTaken, err.Error())
	case errors.Is(err, model.ErrInvalidCredentials):
		return writeError(c, http.StatusUnauthorized, codeInvalidCredentials, err.Error())
	case errors.Is(err, model.ErrInvalidRefreshToken):
		return writeError(c, http.StatusUnauthorized, codeInvalidRefreshToken, err.Error())
	case errors.Is(err, model.ErrUserNotFound):
		return writeError(c, http.StatusNotFound, codeUserNotFound, err.Error())
	}
	return writeServiceError(c, err)
}
