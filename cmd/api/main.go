package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"brokerdesk/internal/adapter/api"
	"brokerdesk/internal/adapter/api/handler"
	apimiddleware "brokerdesk/internal/adapter/api/middleware"
	"brokerdesk/internal/adapter/api/router"
	"brokerdesk/internal/adapter/repository"
	"brokerdesk/internal/infrastructure/firebase"
	"brokerdesk/internal/infrastructure/ratelimit"
	"brokerdesk/internal/infrastructure/token"
	"brokerdesk/internal/infrastructure/websocket"
	"brokerdesk/internal/usecase"
	"brokerdesk/pkg/config"
	"brokerdesk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.SocketSecret == "" {
		log.Fatal("SOCKET_TOKEN_SECRET must be set")
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	convRepo := repository.NewFirestoreConversationRepository(firestoreClient)

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	conversationUseCase := usecase.NewConversationUseCase(convRepo, userRepo, limiter)

	issuer := token.NewIssuer(cfg.SocketSecret, time.Duration(cfg.SocketTokenTTL)*time.Second)
	wsManager := websocket.NewManager(conversationUseCase, limiter)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     []string{cfg.AllowedOrigin},
		AllowCredentials: true,
	}))
	e.Validator = api.NewValidator()

	fbAuth := firebase.NewAuthClient(authClient)
	authMiddleware := apimiddleware.NewAuthMiddleware(fbAuth, conversationUseCase)
	adminMiddleware := apimiddleware.NewAdminMiddleware(userRepo)

	conversationHandler := handler.NewConversationHandler(conversationUseCase)
	tokenHandler := handler.NewSocketTokenHandler(issuer, conversationUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, issuer, cfg.AllowedOrigin)

	router.SetupHealthRouter(e)
	router.SetupConversationRouter(e, conversationHandler, authMiddleware, adminMiddleware)
	router.SetupWebSocketRouter(e, wsHandler, tokenHandler, authMiddleware)

	logger.Info("Starting server on port %s", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
