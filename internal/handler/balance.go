package handler

import (
	"net/http"

	"github.com/rammfall-education/api-fine/internal/ledger"
	"github.com/rammfall-education/api-fine/internal/middleware"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
)

type BalanceHandler struct {
	Ledger *ledger.Ledger
}

func NewBalanceHandler(l *ledger.Ledger) *BalanceHandler {
	return &BalanceHandler{Ledger: l}
}

type topUpReq struct {
	Amount int64 `json:"amount" binding:"required"`
}

func (h *BalanceHandler) GetBalance(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	balance, err := h.Ledger.Read(c.Request.Context(), user.ID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{
		"balance":      balance,
		"topUpCeiling": h.Ledger.Ceiling(),
	})
}

// TopUp credits the caller's balance; the amount is bounded by the ledger ceiling.
func (h *BalanceHandler) TopUp(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	var req topUpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err)
		return
	}

	balance, err := h.Ledger.Credit(c.Request.Context(), user.ID, req.Amount)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{
		"message": "Success",
		"balance": balance,
	})
}
