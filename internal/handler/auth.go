package handler

import (
	"github.com/rammfall-education/api-fine/internal/users"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	Users  *users.Service
	Tokens *util.Tokens
}

func NewAuthHandler(svc *users.Service, tokens *util.Tokens) *AuthHandler {
	return &AuthHandler{Users: svc, Tokens: tokens}
}

// ---------- register ----------

type registerReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err)
		return
	}

	user, err := h.Users.Register(c.Request.Context(), users.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Created(c, util.Response{
		"message": "User successful created",
		"user":    toUserResp(user),
	})
}

// ---------- login ----------

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err)
		return
	}

	user, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		util.Fail(c, err)
		return
	}

	token, err := h.Tokens.Generate(user)
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"token": token,
		"email": user.Email,
		"role":  user.Role,
	})
}
