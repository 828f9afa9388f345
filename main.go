// File: tailortalk/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailortalk/config"
	"tailortalk/cron"
	"tailortalk/database"
	eventsRepo "tailortalk/database/repository/events"
	"tailortalk/handlers"
	"tailortalk/middleware"
	"tailortalk/routes"
	"tailortalk/services/availability"
	"tailortalk/services/booking"
	"tailortalk/services/calendar"
	"tailortalk/services/extraction"
	ai "tailortalk/services/intelligence"
	"tailortalk/services/session"
	"tailortalk/services/speech"
	"tailortalk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	settings, err := config.BookingSettings()
	if err != nil {
		logger.Sugar().Fatalf("main: invalid booking settings: %v", err)
	}

	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	probes := map[string]utils.Probe{}
	var stoppers []func()

	// Session store and its sweep.
	var store session.Store
	storeOpts := session.Options{TTL: settings.SessionTTL, Logger: utils.ComponentLogger("session")}
	switch config.AppConfig.SessionBackend {
	case "redis":
		client := utils.GetSessionCacheClient()
		redisStore := session.NewRedisStore(client, storeOpts)
		store = redisStore
		probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		stop, err := cron.InitSweepWorker(redisStore, settings.SessionTTL, utils.ComponentLogger("sweep"))
		if err != nil {
			logger.Sugar().Fatalf("main: failed to start session sweep worker: %v", err)
		}
		stoppers = append(stoppers, stop)
	default:
		memStore := session.NewMemoryStore(storeOpts)
		store = memStore
		stop, err := cron.StartLocalSweep(memStore, config.AppConfig.SessionSweepInterval, settings.SessionTTL, utils.ComponentLogger("sweep"))
		if err != nil {
			logger.Sugar().Fatalf("main: failed to start session sweep: %v", err)
		}
		stoppers = append(stoppers, stop)
	}

	// Calendar backend.
	var cal calendar.Calendar
	switch config.AppConfig.CalendarBackend {
	case "google":
		g, err := calendar.NewGoogleCalendar(ctx, config.AppConfig.GoogleServiceAccountFile, config.AppConfig.CalendarID, utils.ComponentLogger("calendar"))
		if err != nil {
			logger.Sugar().Fatalf("main: failed to initialize Google Calendar: %v", err)
		}
		cal = g
	case "mongo":
		db, err := database.InitDB(ctx)
		if err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
		repo := eventsRepo.NewMongoEventRepo(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Sugar().Fatalf("main: failed to ensure calendar indexes: %v", err)
		}
		cal = calendar.NewMongoCalendar(repo, config.AppConfig.CalendarID, utils.ComponentLogger("calendar"))
		probes["mongo"] = func(ctx context.Context) error { return database.MongoClient.Ping(ctx, nil) }
		stoppers = append(stoppers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = database.CloseDB(closeCtx)
		})
	default:
		cal = calendar.NewMemoryCalendar()
	}

	// Language understanding. Without a provider only the rule parser runs.
	var primary extraction.Parser
	switch config.AppConfig.NLUProvider {
	case "gemini":
		g, err := ai.NewGeminiClient(ctx, config.AppConfig.GeminiAPIKey, config.AppConfig.GeminiModel)
		if err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
		stoppers = append(stoppers, func() { _ = g.Close() })
		primary = extraction.NLUParser{Client: g}
	case "openai":
		primary = extraction.NLUParser{Client: ai.NewOpenAIClient(config.AppConfig.OpenAIAPIKey, config.AppConfig.OpenAIModel)}
	}

	// Voice turns are optional; the chat works without them.
	var transcriber speech.Transcriber
	if t, err := speech.NewGoogleTranscriber(ctx, config.AppConfig.GoogleServiceAccountFile, config.AppConfig.SpeechLanguage, utils.ComponentLogger("speech")); err != nil {
		logger.Warn("Voice turns disabled", zap.Error(err))
	} else {
		transcriber = t
		stoppers = append(stoppers, func() { _ = t.Close() })
	}

	extractor := extraction.NewExtractor(primary, settings, utils.ComponentLogger("extraction"))
	resolver := availability.NewResolver(cal, settings, utils.ComponentLogger("availability"))
	bookingService := booking.NewService(store, extractor, resolver, cal, settings, utils.ComponentLogger("booking"))

	chatHandler := handlers.NewChatHandler(bookingService)
	calendarHandler := handlers.NewCalendarHandler(resolver, settings)
	handlerBundle := &handlers.HandlerBundle{
		StartSession:      chatHandler.StartSessionHandler,
		HandleTurn:        chatHandler.TurnHandler,
		VoiceTurn:         chatHandler.VoiceTurnHandler(transcriber),
		GetSession:        chatHandler.GetSessionHandler,
		CancelSession:     chatHandler.CancelSessionHandler,
		AvailableSlots:    calendarHandler.AvailableSlotsHandler,
		UpcomingEvents:    calendarHandler.UpcomingEventsHandler,
		CheckAvailability: calendarHandler.CheckAvailabilityHandler,
		Health:            handlers.HealthHandler,
	}

	utils.SetBackends(map[string]string{
		"sessions": config.AppConfig.SessionBackend,
		"calendar": config.AppConfig.CalendarBackend,
		"nlu":      config.AppConfig.NLUProvider,
	})
	utils.StartHealthMonitor(ctx, probes, 60*time.Second)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger())
	routes.RegisterRoutes(router, handlerBundle, middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	cancelRoot()
	for i := len(stoppers) - 1; i >= 0; i-- {
		stoppers[i]()
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
