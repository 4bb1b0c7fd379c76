package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"open-mediaserver/internal/app"
	"open-mediaserver/internal/model"
	"open-mediaserver/internal/pkg/sessionkey"
	"open-mediaserver/internal/transport/http/response"
)

const contextUserKey = "session_user"

// AuthSession resolves the user_session cookie to an account and aborts
// with 401 when there is none or it matches no account.
func AuthSession(accountService *app.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Request.Cookie(sessionkey.CookieName)
		if err != nil || cookie.Value == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing session cookie")
			c.Abort()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := accountService.ResolveSession(ctx, cookie.Value)
		if err != nil {
			response.Error(c, 500, response.CodeInternalServer, "session lookup failed")
			c.Abort()
			return
		}
		if user == nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid session")
			c.Abort()
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the account resolved by AuthSession, if any.
func CurrentUser(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}
