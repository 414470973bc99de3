package main

import (
	"context"
	"log"
	"net/http"
	"oracle-broker/cmd"
	"oracle-broker/internal/api"
	"oracle-broker/internal/broker"
	"oracle-broker/internal/database"
	"oracle-broker/internal/messaging"
	"oracle-broker/internal/oracle"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL    string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL    string `env:"RABBITMQ_URL,notEmpty,required"`
	OracleURL      string `env:"ORACLE_URL,notEmpty,required"`
	OracleIdentity string `env:"ORACLE_IDENTITY,notEmpty,required"`
	AdminIdentity  string `env:"ADMIN_IDENTITY,notEmpty,required"`
	CallbackTarget string `env:"CALLBACK_TARGET,notEmpty,required"`
	ModelId        uint64 `env:"MODEL_ID" envDefault:"11"`
	GasBudgets     string `env:"GAS_BUDGETS" envDefault:"11=5000000"`
	APIPort        string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting Broker API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := cmd.SeedGasBudgets(context.Background(), db, cfg.GasBudgets); err != nil {
		log.Fatalf("Failed to seed gas budgets: %v", err)
	}

	oracleClient := oracle.NewHttpClient(cfg.OracleURL)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	requestBroker := broker.NewBroker(db, oracleClient, publisher, broker.RawPayloadBuilder{}, broker.Config{
		ModelId:        cfg.ModelId,
		CallbackTarget: cfg.CallbackTarget,
		OracleIdentity: cfg.OracleIdentity,
		AdminIdentity:  cfg.AdminIdentity,
	})

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", api.CallerIdentityHeader},
	}))

	// API Handlers (dependency injection)
	apiHandler := api.NewBrokerService(requestBroker)

	apiHandler.AddRoutes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
