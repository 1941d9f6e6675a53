package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"presence-service/internal/api/handlers"
	"presence-service/internal/api/middleware"
	"presence-service/internal/auth"
	"presence-service/internal/presence"
	"presence-service/internal/repositories/postgres"
	"presence-service/internal/services"
	"presence-service/internal/websocket"
)

type Router struct {
	engine      *gin.Engine
	authHandler *handlers.AuthHandler
	roomHandler *handlers.RoomHandler
	wsHandler   *handlers.WSHandler
	tokens      *auth.TokenManager
}

func NewRouter(
	hub *websocket.Hub,
	coordinator *presence.Coordinator,
	db *gorm.DB,
	tokens *auth.TokenManager,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogAPI())

	userRepo := postgres.NewUserRepository(db)
	roomRepo := postgres.NewRoomRepository(db)
	userService := services.NewUserService(userRepo, tokens)

	return &Router{
		engine:      engine,
		authHandler: handlers.NewAuthHandler(userService),
		roomHandler: handlers.NewRoomHandler(roomRepo, coordinator),
		wsHandler:   handlers.NewWSHandler(hub),
		tokens:      tokens,
	}
}

func (r *Router) SetupRoutes() {
	api := r.engine.Group("/api")
	{
		api.POST("/auth/register", r.authHandler.Register)
		api.POST("/auth/login", r.authHandler.Login)

		authed := api.Group("", middleware.Auth(r.tokens))
		authed.GET("/rooms", r.roomHandler.ListPublic)
	}

	r.engine.GET("/ws", middleware.WSAuth(r.tokens), r.wsHandler.HandleWebSocket)

	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
