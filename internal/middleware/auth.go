package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rammfall-education/api-fine/internal/apperr"
	"github.com/rammfall-education/api-fine/internal/models"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
)

const currentUserKey = "currentUser"

// UserLoader resolves the account behind a verified token.
type UserLoader interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

// AuthMiddleware verifies the JWT and puts the current user in the context.
func AuthMiddleware(tokens *util.Tokens, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFrom(c)
		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			return
		}

		user, err := users.Get(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
				return
			}
			util.Fail(c, err)
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// tokenFrom looks in the Authorization header, the bare token header, then ?token=.
func tokenFrom(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if t := c.GetHeader("token"); t != "" {
		return strings.TrimSpace(t)
	}
	return c.Query("token")
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
