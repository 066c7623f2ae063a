package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRotoCore/internal/auth"
	"github.com/KevinKickass/OpenRotoCore/internal/config"
	"github.com/KevinKickass/OpenRotoCore/internal/interfaces"
	"github.com/KevinKickass/OpenRotoCore/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
	metrics     *metrics.Metrics
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		metrics:     m,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes
	s.router.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		authed := v1.Group("")
		authed.Use(s.authService.AuthMiddleware())

		authProtected := authed.Group("/auth")
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== STATION TOKENS (ADMIN) ====================
		stationTokens := authed.Group("/station-tokens")
		stationTokens.Use(auth.RequirePermission(auth.PermAdmin))
		{
			stationTokens.POST("", s.createStationToken)
			stationTokens.GET("", s.listStationTokens)
			stationTokens.DELETE("/:id", s.deleteStationToken)
		}

		// ==================== USERS (ADMIN) ====================
		users := authed.Group("/users")
		users.Use(auth.RequirePermission(auth.PermAdmin))
		{
			users.POST("", s.createUser)
			users.GET("", s.listUsers)
			users.DELETE("/:id", s.deleteUser)
		}

		// ==================== SYSTEM ====================
		system := authed.Group("/system")
		{
			system.GET("/status", auth.RequirePermission(auth.PermOperate), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== MOLD CATALOG ====================
		molds := authed.Group("/molds")
		{
			molds.GET("", auth.RequirePermission(auth.PermOperate), s.listMolds)
			molds.GET("/:id", auth.RequirePermission(auth.PermOperate), s.getMold)
			molds.GET("/:id/compatible", auth.RequirePermission(auth.PermOperate), s.compatibleMolds)
			molds.POST("/import", auth.RequirePermission(auth.PermAdmin), s.importMolds)
		}

		spiders := authed.Group("/spiders")
		{
			spiders.GET("/:ref", auth.RequirePermission(auth.PermOperate), s.getSpiderProfile)
		}

		// ==================== MACHINES ====================
		machines := authed.Group("/machines")
		machines.Use(auth.RequireMachineScope("id"))
		{
			machines.GET("", auth.RequirePermission(auth.PermOperate), s.listMachines)
			machines.GET("/:id", auth.RequirePermission(auth.PermOperate), s.getMachine)
			machines.GET("/:id/validate", auth.RequirePermission(auth.PermOperate), s.validateMachine)
			machines.GET("/:id/inspect", auth.RequirePermission(auth.PermOperate), s.inspectMachine)
			machines.GET("/:id/cycles", auth.RequirePermission(auth.PermOperate), s.listCycles)
			machines.POST("/:id/cycles", auth.RequirePermission(auth.PermOperate), s.executeCycle)

			machines.POST("/:id/arrangement", auth.RequirePermission(auth.PermPlan), s.changeArrangement)
			machines.POST("/:id/arms/:arm/molds", auth.RequirePermission(auth.PermPlan), s.mountMold)
			machines.DELETE("/:id/arms/:arm/molds/:mold", auth.RequirePermission(auth.PermPlan), s.unmountMold)
			machines.POST("/:id/arms/:arm/spiders", auth.RequirePermission(auth.PermPlan), s.mountSpider)
			machines.DELETE("/:id/arms/:arm/spiders/:type", auth.RequirePermission(auth.PermPlan), s.unmountSpider)
			machines.POST("/:id/arms/:arm/weights", auth.RequirePermission(auth.PermPlan), s.addBalancingWeight)
			machines.GET("/:id/arms/:arm/balancing", auth.RequirePermission(auth.PermPlan), s.planArmBalancing)

			machines.POST("/:id/reset-daily", auth.RequirePermission(auth.PermAdmin), s.resetDaily)
		}

		balancing := authed.Group("/balancing")
		balancing.Use(auth.RequirePermission(auth.PermPlan))
		{
			balancing.POST("/plan", s.planBalancing)
		}

		// ==================== ORDERS ====================
		orders := authed.Group("/orders")
		{
			orders.GET("", auth.RequirePermission(auth.PermOperate), s.listOrders)
			orders.GET("/:id", auth.RequirePermission(auth.PermOperate), s.getOrder)
			orders.GET("/:id/completion", auth.RequirePermission(auth.PermOperate), s.checkOrderCompletion)
			orders.POST("", auth.RequirePermission(auth.PermPlan), s.createOrder)
			orders.POST("/:id/progress", auth.RequirePermission(auth.PermPlan), s.recordOrderProgress)
		}

		// ==================== WEBSOCKET (auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperate), s.wsStatus)
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"state":          status.State,
		"machines_ready": status.MachinesReady,
		"timestamp":      time.Now().Unix(),
	})
}
