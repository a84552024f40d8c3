package handler

import (
	"net/http"

	"github.com/rammfall-education/api-fine/internal/middleware"
	"github.com/rammfall-education/api-fine/internal/users"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
)

type changeEmailReq struct {
	Email string `json:"email" binding:"required"`
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// ChangeEmail moves the current user to a new email.
func ChangeEmail(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			return
		}

		var req changeEmailReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.BadRequest(c, err)
			return
		}

		email, err := svc.ChangeEmail(c.Request.Context(), user.ID, req.Email)
		if err != nil {
			util.Fail(c, err)
			return
		}

		util.Success(c, util.Response{"email": email})
	}
}

// ChangePassword replaces the current user's password.
func ChangePassword(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			return
		}

		var req changePasswordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.BadRequest(c, err)
			return
		}

		if err := svc.ChangePassword(c.Request.Context(), user.ID, req.OldPassword, req.Password); err != nil {
			util.Fail(c, err)
			return
		}

		util.Success(c, util.Response{
			"message": "Password successful updated",
		})
	}
}
