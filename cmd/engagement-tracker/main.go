package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/gosight/gosight/engagement/internal/config"
	"github.com/gosight/gosight/engagement/internal/enricher"
	"github.com/gosight/gosight/engagement/internal/handler"
	"github.com/gosight/gosight/engagement/internal/mqtt"
	"github.com/gosight/gosight/engagement/internal/pageview"
	"github.com/gosight/gosight/engagement/internal/producer"
	"github.com/gosight/gosight/engagement/internal/server"
	"github.com/gosight/gosight/engagement/internal/validation"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/tracker.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
	}

	log.Info().Msg("Starting GoSight engagement tracker...")

	// Heartbeat transports
	kafkaProducer, err := producer.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka producer")
	}
	defer kafkaProducer.Close()
	publishers := []pageview.Publisher{kafkaProducer}
	log.Info().Msg("Kafka producer initialized")

	if cfg.MQTT.Broker != "" {
		mqttPublisher, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		defer mqttPublisher.Close()
		publishers = append(publishers, mqttPublisher)
		log.Info().Str("broker", cfg.MQTT.Broker).Msg("MQTT publisher initialized")
	}

	validator, err := validation.NewValidator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create validator")
	}
	defer validator.Close()
	log.Info().Msg("Validator initialized")

	clientEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
	defer clientEnricher.Close()
	log.Info().Msg("Enricher initialized")

	registry := pageview.NewRegistry(pageview.SettingsFromConfig(cfg), publishers...)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go registry.RunSweeper(sweepCtx, cfg.PageViews.SweepInterval)

	// Create gRPC server
	grpcServer := grpc.NewServer()
	server.RegisterSignalServiceServer(grpcServer, server.NewSignalServer(registry, validator, clientEnricher))

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to listen for gRPC")
		}
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve gRPC")
		}
	}()

	// Create HTTP server
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(handler.CORSMiddleware)
	handler.NewHTTPHandler(registry, validator, clientEnricher).Routes(r)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down servers...")
	grpcServer.GracefulStop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}

	// Flush the last heartbeat of every open page view before the producers close
	stopSweeper()
	registry.Close()
	log.Info().Msg("Servers stopped")
}
