package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"receipt-overseer/internal/auth"
	"receipt-overseer/internal/config"
	"receipt-overseer/internal/db"
	"receipt-overseer/internal/handlers"
	"receipt-overseer/internal/middleware"
	"receipt-overseer/internal/observability"
	"receipt-overseer/internal/rabbitmq"
	"receipt-overseer/internal/repositories"
	"receipt-overseer/internal/service"
	"receipt-overseer/internal/telemetry"
	"receipt-overseer/internal/ws"
)

const auditRoutingKey = "audit.events"

// app is the fully wired service.
type app struct {
	cfg      config.Config
	db       *sqlx.DB
	broker   rabbitmq.Publisher
	registry *ws.Registry
	router   *gin.Engine
}

func newApp(cfg config.Config) (*app, error) {
	database, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	broker := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	audit := telemetry.NewAuditEmitter(broker, auditRoutingKey, cfg.ServiceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	expenseRepo := repositories.NewExpenseRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	authService := auth.NewService(userRepo, auth.NewJWTManager(cfg.SigningSecret(), cfg.Auth.TokenTTL))

	registry := ws.NewRegistry()
	bus := ws.NewBus(registry, broker)

	ledgerService := service.NewLedgerService(userRepo, expenseRepo, bus, audit)
	chatService := service.NewChatService(messageRepo, bus, audit)

	userHandler := handlers.NewUserHandler(authService, userRepo, registry, audit)
	expenseHandler := handlers.NewExpenseHandler(ledgerService)
	messageHandler := handlers.NewMessageHandler(chatService)
	wsHandler := ws.NewHandler(registry, authService, ledgerService, chatService, broker, cfg.WS)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
	)

	authMiddleware := middleware.AuthMiddleware(authService)

	router.POST("/users", userHandler.Register)
	router.POST("/token", userHandler.Login)
	router.POST("/logout", authMiddleware, userHandler.Logout)
	router.GET("/users", authMiddleware, userHandler.ListUsers)
	router.GET("/users/me", authMiddleware, userHandler.Me)
	router.PUT("/users/me/password", authMiddleware, userHandler.ChangePassword)
	router.GET("/users/:user_id", authMiddleware, userHandler.GetUser)
	router.DELETE("/users/:user_id", authMiddleware, userHandler.DeleteUser)

	router.GET("/expenses", authMiddleware, expenseHandler.ListExpenses)
	router.POST("/expenses", authMiddleware, expenseHandler.CreateExpense)
	router.PUT("/expenses/:expense_id", authMiddleware, expenseHandler.UpdateExpense)
	router.DELETE("/expenses/:expense_id", authMiddleware, expenseHandler.DeleteExpense)
	router.GET("/balance", authMiddleware, expenseHandler.GetBalance)

	router.GET("/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/messages", authMiddleware, messageHandler.PostMessage)
	router.PUT("/messages/:message_id", authMiddleware, messageHandler.EditMessage)
	router.DELETE("/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"broker":        rabbitmq.PublisherMode(broker),
			"broker_reason": rabbitmq.PublisherNoopReason(broker),
			"sessions":      registry.Count(),
		})
	})

	debug := router.Group("/", authMiddleware)
	handlers.RegisterDebugRoutes(debug, audit, registry, cfg.DebugRoutes)

	return &app{cfg: cfg, db: database, broker: broker, registry: registry, router: router}, nil
}

// closeSessions disconnects every live websocket session.
func (a *app) closeSessions() int {
	return a.registry.CloseAll("server shutting down")
}

// Close releases the broker and database.
func (a *app) Close() error {
	return errors.Join(a.broker.Close(), a.db.Close())
}
