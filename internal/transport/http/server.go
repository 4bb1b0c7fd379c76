package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "open-mediaserver/internal/app"
	"open-mediaserver/internal/bootstrap"
	"open-mediaserver/internal/cache"
	"open-mediaserver/internal/platform/rabbitmq"
	"open-mediaserver/internal/repository"
	"open-mediaserver/internal/transport/http/handler"
	"open-mediaserver/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	mediaRepo := repository.NewMediaRepository(app.MySQL)
	sessionCache := cache.NewSessionCache(app.Redis, time.Duration(app.Config.Auth.SessionCacheTTL)*time.Second)
	purgePublisher := rabbitmq.NewPurgePublisher(app.MQConn, app.Config.RabbitMQ.MediaPurgeQueue)
	accountService := appsvc.NewAccountService(userRepo, mediaRepo, sessionCache, purgePublisher)
	accountHandler := handler.NewAccountHandler(
		accountService,
		app.Config.Auth.CookieSecure,
		time.Duration(app.Config.Auth.RequestTimeoutSec)*time.Second,
	)

	account := router.Group("/api/account")
	account.POST("/register/", accountHandler.Register)
	account.POST("/login/", accountHandler.Login)
	account.POST("/delete/", accountHandler.Delete)
	account.GET("/status/", middleware.AuthSession(accountService), accountHandler.Status)
	account.GET("/uploads/", middleware.AuthSession(accountService), accountHandler.Uploads)

	return router
}
