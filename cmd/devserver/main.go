package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/internal/devserver"
	"github.com/kitchenly/client-go/pkg/models"
	"github.com/kitchenly/client-go/pkg/money"
)

func main() {
	godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getEnv("KITCHENLY_LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	port := getEnv("DEVSERVER_PORT", "8080")
	databaseURL := os.Getenv("DATABASE_URL")
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")

	var store devserver.Store
	var err error
	if databaseURL != "" {
		store, err = devserver.NewPostgresStore(databaseURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		logger.Info("Using Postgres store")
	} else {
		store = devserver.NewMemoryStore()
		logger.Info("Using in-memory store")
	}

	if err := store.SeedMeals(seedMeals(), seedKitchens()); err != nil {
		logger.WithError(err).Fatal("Failed to seed catalog")
	}

	handler := devserver.NewHandler(store, logger)

	hub := devserver.NewHub(logger)
	go hub.Run()
	handler.SetBroadcaster(hub)

	if kafkaBrokers != "" {
		producer, err := devserver.NewKafkaProducer(kafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		handler.SetEventSink(producer)
		logger.WithField("brokers", kafkaBrokers).Info("Kafka event publishing enabled")
	}

	router := mux.NewRouter()
	handler.Routes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.Use(loggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", port).Info("Starting devserver")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func seedKitchens() []models.Kitchen {
	return []models.Kitchen{
		{ID: "kitchen-mamas", Name: "Mama's Place"},
		{ID: "kitchen-suya", Name: "Suya Spot"},
		{ID: "kitchen-green", Name: "Green Bowl"},
	}
}

func seedMeals() []models.Meal {
	return []models.Meal{
		{ID: "meal-jollof", KitchenID: "kitchen-mamas", Name: "Jollof Rice", UnitPrice: money.AmountFromString("2500")},
		{ID: "meal-moimoi", KitchenID: "kitchen-mamas", Name: "Moi Moi", UnitPrice: money.AmountFromString("1200")},
		{ID: "meal-egusi", KitchenID: "kitchen-mamas", Name: "Egusi Soup", UnitPrice: money.AmountFromString("3200")},
		{ID: "meal-suya", KitchenID: "kitchen-suya", Name: "Beef Suya", UnitPrice: money.AmountFromString("3000")},
		{ID: "meal-kilishi", KitchenID: "kitchen-suya", Name: "Kilishi", UnitPrice: money.AmountFromString("4500")},
		{ID: "meal-salad", KitchenID: "kitchen-green", Name: "Garden Salad", UnitPrice: money.AmountFromString("1800")},
		{ID: "meal-smoothie", KitchenID: "kitchen-green", Name: "Mango Smoothie", UnitPrice: money.AmountFromString("1500")},
	}
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
