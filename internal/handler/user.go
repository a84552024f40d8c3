package handler

import (
	"net/http"
	"time"

	"github.com/rammfall-education/api-fine/internal/ledger"
	"github.com/rammfall-education/api-fine/internal/middleware"
	"github.com/rammfall-education/api-fine/internal/models"
	"github.com/rammfall-education/api-fine/internal/users"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
)

type userResp struct {
	ID        uint        `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

func toUserResp(u *models.User) userResp {
	return userResp{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// GetMe returns the current user together with their balance.
func GetMe(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			return
		}

		balance, err := l.Read(c.Request.Context(), user.ID)
		if err != nil {
			util.Fail(c, err)
			return
		}

		util.Success(c, util.Response{
			"user":    toUserResp(user),
			"balance": balance,
		})
	}
}

// ListUsers is the admin directory of debtors, filtered by ?search=.
func ListUsers(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			return
		}

		list, err := svc.List(c.Request.Context(), user.Actor(), c.Query("search"))
		if err != nil {
			util.Fail(c, err)
			return
		}

		out := make([]userResp, 0, len(list))
		for i := range list {
			out = append(out, toUserResp(&list[i]))
		}
		util.Success(c, out)
	}
}
