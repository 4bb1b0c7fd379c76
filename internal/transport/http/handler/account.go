package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"open-mediaserver/internal/app"
	"open-mediaserver/internal/pkg/sessionkey"
	"open-mediaserver/internal/transport/http/middleware"
	"open-mediaserver/internal/transport/http/response"
)

type AccountHandler struct {
	accountService *app.AccountService
	cookieSecure   bool
	requestTimeout time.Duration
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

type DeleteRequest struct {
	Username    string `json:"username" binding:"required,max=64"`
	Password    string `json:"password" binding:"required,max=128"`
	DeleteMedia bool   `json:"deleteMedia"`
}

func NewAccountHandler(accountService *app.AccountService, cookieSecure bool, requestTimeout time.Duration) *AccountHandler {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &AccountHandler{
		accountService: accountService,
		cookieSecure:   cookieSecure,
		requestTimeout: requestTimeout,
	}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	key, err := h.accountService.Register(ctx, app.RegisterInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUsernameTaken):
			response.Error(c, http.StatusForbidden, response.CodeUsernameTaken, "profile username already in use")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register failed")
		}
		return
	}

	h.setSessionCookie(c, key)
	response.OK(c, nil)
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.accountService.Login(ctx, app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUnknownUser):
			response.Error(c, http.StatusBadRequest, response.CodeUnknownUser, "no account associated with that username")
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, "invalid username or password")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	// A fresh session key always ships as a cookie; a returning user whose
	// request carries no live cookie gets the stored key reissued.
	if result.Bootstrapped || !h.hasSessionCookie(c) {
		h.setSessionCookie(c, result.SessionKey)
	}
	response.OK(c, nil)
}

func (h *AccountHandler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	err := h.accountService.Delete(ctx, app.DeleteInput{
		Username:    req.Username,
		Password:    req.Password,
		DeleteMedia: req.DeleteMedia,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUnknownUser):
			response.Error(c, http.StatusBadRequest, response.CodeUnknownUser, "unable to find account associated")
		case errors.Is(err, app.ErrInvalidCredential):
			// Parity with the original surface: delete gives no distinct
			// wrong-password signal, only a generic validation failure.
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unable to delete account")
		case errors.Is(err, app.ErrInternalInconsistency):
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete failed")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete failed")
		}
		return
	}

	response.OK(c, nil)
}

// Status reports the account behind the caller's session cookie.
func (h *AccountHandler) Status(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "no active session")
		return
	}

	response.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"uploads":    len(user.Uploads),
	})
}

// Uploads lists the media records owned by the caller's account.
func (h *AccountHandler) Uploads(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "no active session")
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	uploads, err := h.accountService.ListUploads(ctx, user.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list uploads failed")
		return
	}

	response.OK(c, gin.H{"uploads": uploads})
}

func (h *AccountHandler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

func (h *AccountHandler) setSessionCookie(c *gin.Context, key string) {
	http.SetCookie(c.Writer, sessionkey.Cookie(key, h.cookieSecure))
}

func (h *AccountHandler) hasSessionCookie(c *gin.Context) bool {
	_, err := c.Request.Cookie(sessionkey.CookieName)
	return err == nil
}
