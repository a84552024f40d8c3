package router

import (
	"net/http"

	"github.com/rammfall-education/api-fine/internal/config"
	"github.com/rammfall-education/api-fine/internal/database"
	"github.com/rammfall-education/api-fine/internal/fines"
	"github.com/rammfall-education/api-fine/internal/handler"
	"github.com/rammfall-education/api-fine/internal/ledger"
	"github.com/rammfall-education/api-fine/internal/middleware"
	"github.com/rammfall-education/api-fine/internal/users"
	"github.com/rammfall-education/api-fine/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services are the components the HTTP layer is wired to.
type Services struct {
	Users    *users.Service
	Ledger   *ledger.Ledger
	Fines    *fines.Store
	Payments *fines.Coordinator
	Tokens   *util.Tokens
}

// NewServices builds every component on top of one transactor.
func NewServices(cfg *config.Config, tx *database.Transactor, logger *zap.Logger) *Services {
	return &Services{
		Users:    users.NewService(tx, cfg.Security.BcryptCost, logger),
		Ledger:   ledger.New(tx, cfg.Ledger.TopUpCeiling, logger),
		Fines:    fines.NewStore(tx, logger),
		Payments: fines.NewCoordinator(tx, logger),
		Tokens:   util.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpireHours),
	}
}

// SetupRouter configures the Gin engine and the /api routes.
func SetupRouter(cfg *config.Config, svc *Services, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// no auth
	authHandler := handler.NewAuthHandler(svc.Users, svc.Tokens)
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(svc.Tokens, svc.Users))

	protected.GET("/me", handler.GetMe(svc.Ledger))
	protected.PUT("/account/email", handler.ChangeEmail(svc.Users))
	protected.PUT("/account/password", handler.ChangePassword(svc.Users))

	balanceHandler := handler.NewBalanceHandler(svc.Ledger)
	protected.GET("/balance", balanceHandler.GetBalance)
	protected.POST("/balance/top-up", balanceHandler.TopUp)

	fineHandler := handler.NewFineHandler(svc.Fines, svc.Payments)
	protected.GET("/fines", fineHandler.ListFines)
	protected.GET("/fines/:id", fineHandler.GetFine)
	protected.POST("/discard/:id", fineHandler.RequestDiscard)
	protected.POST("/pay/fine/:id", fineHandler.PayFine)

	// admin; role is enforced by the services
	protected.GET("/users", handler.ListUsers(svc.Users))
	protected.POST("/fine", fineHandler.CreateFine)
	protected.PUT("/status/:id", fineHandler.ChangeStatus)
	protected.GET("/admin/fines", fineHandler.ListAllFines)

	exportHandler := handler.NewExportHandler(svc.Fines)
	protected.GET("/admin/fines/export/csv", exportHandler.ExportCSV)
	protected.GET("/admin/fines/export/xlsx", exportHandler.ExportXLSX)

	return r
}
