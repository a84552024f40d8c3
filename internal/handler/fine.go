package handler

import (
	"net/http"
	"time"

	"github.com/rammfall-education/api-fine/internal/fines"
	"github.com/rammfall-education/api-fine/internal/middleware"
	"github.com/rammfall-education/api-fine/internal/models"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
)

// FineHandler serves the fine lifecycle: issue, list, dispute, decide, pay.
type FineHandler struct {
	Store    *fines.Store
	Payments *fines.Coordinator
}

func NewFineHandler(store *fines.Store, payments *fines.Coordinator) *FineHandler {
	return &FineHandler{Store: store, Payments: payments}
}

// ---------- request/response ----------

type createFineReq struct {
	UserID      uint   `json:"userId" binding:"required"`
	Description string `json:"description" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Deadline    string `json:"deadline" binding:"required"`
}

type changeStatusReq struct {
	Status models.FineStatus `json:"status" binding:"required"`
}

type fineResp struct {
	ID          uint              `json:"id"`
	Description string            `json:"description"`
	Amount      int64             `json:"amount"`
	Status      models.FineStatus `json:"status"`
	AdminID     uint              `json:"adminId"`
	UserID      uint              `json:"userId"`
	IssuedDate  string            `json:"issuedDate"`
	Deadline    string            `json:"deadline"`
}

func toFineResp(f *models.Fine) fineResp {
	return fineResp{
		ID:          f.ID,
		Description: f.Description,
		Amount:      f.Amount,
		Status:      f.Status,
		AdminID:     f.AdminID,
		UserID:      f.UserID,
		IssuedDate:  f.IssuedDate.Format(util.DateLayout),
		Deadline:    f.Deadline.Format(util.DateLayout),
	}
}

func toFineResps(list []models.Fine) []fineResp {
	out := make([]fineResp, 0, len(list))
	for i := range list {
		out = append(out, toFineResp(&list[i]))
	}
	return out
}

// filterFrom reads dateFrom, dateTo, statuses and description from the query.
// statuses may repeat or be comma separated.
func filterFrom(c *gin.Context) (fines.Filter, error) {
	var f fines.Filter
	var err error
	if f.DateFrom, err = util.ParseOptionalDate("dateFrom", c.Query("dateFrom")); err != nil {
		return f, err
	}
	if f.DateTo, err = util.ParseOptionalDate("dateTo", c.Query("dateTo")); err != nil {
		return f, err
	}

	var raw []string
	raw = append(raw, c.QueryArray("statuses")...)
	raw = append(raw, c.QueryArray("statuses[]")...)
	for _, s := range util.SplitList(raw) {
		f.Statuses = append(f.Statuses, models.FineStatus(s))
	}
	f.Description = c.Query("description")
	return f, nil
}

// ---------- handlers ----------

// CreateFine lets an admin fine a user.
func (h *FineHandler) CreateFine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	var req createFineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err)
		return
	}
	deadline, err := util.ParseDate("deadline", req.Deadline)
	if err != nil {
		util.Fail(c, err)
		return
	}

	fine, err := h.Store.Issue(c.Request.Context(), user.Actor(), fines.IssueRequest{
		UserID:      req.UserID,
		Description: req.Description,
		Amount:      req.Amount,
		Deadline:    deadline,
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Created(c, util.Response{
		"message": "Successful created fine",
		"fine":    toFineResp(fine),
	})
}

// ListFines returns the caller's own fines.
func (h *FineHandler) ListFines(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	filter, err := filterFrom(c)
	if err != nil {
		util.Fail(c, err)
		return
	}

	list, err := h.Store.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, toFineResps(list))
}

// ListAllFines is the admin view over every user's fines.
func (h *FineHandler) ListAllFines(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	filter, err := filterFrom(c)
	if err != nil {
		util.Fail(c, err)
		return
	}

	list, err := h.Store.ListAll(c.Request.Context(), user.Actor(), filter)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, toFineResps(list))
}

// GetFine returns one of the caller's fines.
func (h *FineHandler) GetFine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	id, err := util.ParseID(c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}

	fine, err := h.Store.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, toFineResp(fine))
}

// RequestDiscard disputes one of the caller's requested fines.
func (h *FineHandler) RequestDiscard(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	id, err := util.ParseID(c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}

	fine, err := h.Store.RequestDiscard(c.Request.Context(), user.ID, id)
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "Request to discard was sent",
		"fine":    toFineResp(fine),
	})
}

// ChangeStatus resolves a pending dispute.
func (h *FineHandler) ChangeStatus(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	id, err := util.ParseID(c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	var req changeStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err)
		return
	}

	fine, err := h.Store.Decide(c.Request.Context(), user.Actor(), id, req.Status)
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "Success status change",
		"fine":    toFineResp(fine),
	})
}

// PayFine pays one of the caller's fines from their balance.
func (h *FineHandler) PayFine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return
	}

	id, err := util.ParseID(c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}

	rc, err := h.Payments.Pay(c.Request.Context(), user.ID, id)
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "Fine has been paid successfully",
		"fineId":  rc.FineID,
		"status":  rc.Status,
		"amount":  rc.Amount,
		"balance": rc.Balance,
		"paidAt":  rc.PaidAt.Format(time.RFC3339),
	})
}
