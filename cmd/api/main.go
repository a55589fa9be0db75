package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/DevSwayam/faucet-attenomics/internal/config"
	"github.com/DevSwayam/faucet-attenomics/internal/events"
	"github.com/DevSwayam/faucet-attenomics/internal/handler"
	"github.com/DevSwayam/faucet-attenomics/internal/middleware"
	pgRepo "github.com/DevSwayam/faucet-attenomics/internal/repository/postgres"
	redisRepo "github.com/DevSwayam/faucet-attenomics/internal/repository/redis"
	"github.com/DevSwayam/faucet-attenomics/internal/service"
	"github.com/DevSwayam/faucet-attenomics/pkg/database"
	"github.com/DevSwayam/faucet-attenomics/pkg/evm"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	codeRepo := pgRepo.NewAccessCodeRepo(db)
	userRepo := pgRepo.NewFaucetUserRepo(db)

	cooldownRepo, err := redisRepo.NewCooldownRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CooldownRepo: %v", err)
		os.Exit(1)
	}

	// Клиенты сетей: по одному на включенную сеть, общий ключ горячего кошелька.
	// Никаких процессных синглтонов — карта собирается здесь и передается внутрь.
	chainClients := make(map[string]evm.Client)
	for name, chainCfg := range cfg.Faucet.Chains {
		if !chainCfg.Enabled {
			continue
		}
		client, err := evm.Dial(chainCfg.RPCURL, chainCfg.ChainID, cfg.Faucet.PrivateKey)
		if err != nil {
			log.Printf("Failed to connect to chain '%s': %v", name, err)
			os.Exit(1)
		}
		chainClients[strings.ToLower(name)] = client
		log.Printf("Подключена сеть '%s' (chain_id=%d), кошелек фасета: %s", name, chainCfg.ChainID, client.WalletAddress().Hex())
	}
	defer func() {
		for _, client := range chainClients {
			client.Close()
		}
	}()

	// Email-уведомления о низком балансе (опционально)
	var emailService service.EmailService = &service.NoopEmailService{}
	if cfg.Email.Enabled {
		resendService, err := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			log.Printf("Failed to initialize ResendEmailService: %v", err)
			os.Exit(1)
		}
		emailService = resendService
	}

	// Лента событий для админ-панели
	eventsHub := events.NewHub()

	// Инициализируем сервисы
	codeService, err := service.NewCodeService(codeRepo, cfg.Codes.GenerateRetries)
	if err != nil {
		log.Printf("Failed to initialize CodeService: %v", err)
		os.Exit(1)
	}
	userService, err := service.NewUserService(userRepo)
	if err != nil {
		log.Printf("Failed to initialize UserService: %v", err)
		os.Exit(1)
	}
	faucetService, err := service.NewFaucetService(cfg.Faucet, chainClients, cooldownRepo, emailService, cfg.Admin.AlertEmail, eventsHub)
	if err != nil {
		log.Printf("Failed to initialize FaucetService: %v", err)
		os.Exit(1)
	}

	// CORS origins: значения по умолчанию для локальной разработки
	allowOrigins := cfg.Server.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	// Инициализируем middleware и обработчики
	adminAuth := middleware.NewAdminMiddleware(cfg.Admin)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	codeHandler := handler.NewCodeHandler(codeService, eventsHub)
	accessHandler := handler.NewAccessHandler(userService)
	faucetHandler := handler.NewFaucetHandler(faucetService, codeService, adminAuth)
	eventsHandler := handler.NewEventsHandler(eventsHub, allowOrigins)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// В production: не доверяем прокси (защита от IP spoofing)
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "x-admin-key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Публичные маршруты кодов и авторизации
		api.POST("/validate-code", rateLimiter.Limit(middleware.ValidateRateLimitConfig()), codeHandler.ValidateCode)
		api.POST("/check-access", accessHandler.CheckAccess)
		api.POST("/update-wallet", accessHandler.UpdateWallet)

		// Админ-маршруты управления кодами
		admin := api.Group("/")
		admin.Use(adminAuth.RequireAdmin())
		{
			admin.POST("/generate-code", codeHandler.GenerateCode)
			admin.GET("/list-codes", codeHandler.ListCodes)
			admin.GET("/export-codes", codeHandler.ExportCodes)
			admin.POST("/revoke-code", codeHandler.RevokeCode)
		}

		// Фасет
		faucet := api.Group("/faucet")
		{
			faucet.POST("", rateLimiter.Limit(middleware.DefaultFaucetRateLimitConfig()), faucetHandler.Drip)
			faucet.POST("/access-code", faucetHandler.DripWithAccessCode)
			faucet.GET("/chains", faucetHandler.Chains)
		}
	}

	// WebSocket лента событий
	router.GET("/ws/events", eventsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ждем сигнала остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
