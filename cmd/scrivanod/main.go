// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// scrivanod is the scrivano chat server daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/scrivano-ai/scrivano/pkg/logging"
	"github.com/scrivano-ai/scrivano/services/chat/config"
	"github.com/scrivano-ai/scrivano/services/chat/handlers"
	"github.com/scrivano-ai/scrivano/services/chat/history"
	"github.com/scrivano-ai/scrivano/services/chat/middleware"
	"github.com/scrivano-ai/scrivano/services/chat/observability"
	"github.com/scrivano-ai/scrivano/services/chat/resolver"
	"github.com/scrivano-ai/scrivano/services/chat/routes"
	"github.com/scrivano-ai/scrivano/services/chat/store"
	"github.com/scrivano-ai/scrivano/services/gateway"
)

const serviceName = "scrivanod"

// initTracer wires the OTLP exporter when a collector endpoint is
// configured. Returns a nil cleanup when tracing is disabled; spans then go
// to the default no-op provider.
func initTracer() (func(context.Context), error) {
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		return nil, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			log.Printf("failed to shutdown OTLP exporter: %v", err)
		}
	}, nil
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.Server.LogDir,
		Service: serviceName,
		JSON:    true,
	})
	defer logger.Close()
	slogger := logger.Slog()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	if cleanup != nil {
		defer cleanup(context.Background())
	}

	st, err := store.Open(store.DefaultConfig(cfg.Server.DataDir))
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", cfg.Server.DataDir, err)
	}
	defer st.Close()

	metrics := observability.InitMetrics()

	titleModel := cfg.Gateway.TitleModel
	if titleModel == "" {
		titleModel = cfg.Gateway.Model
	}

	defaults := handlers.GatewayDefaults{
		APIKey:  cfg.Gateway.APIKey,
		BaseURL: cfg.Gateway.BaseURL,
		Model:   cfg.Gateway.Model,
	}

	streamHandler := handlers.NewStreamingChatHandler(
		st,
		resolver.NewResolver(st, titleModel, slogger),
		history.NewLoader(st),
		gateway.NewOpenAIClient,
		defaults,
		metrics,
		slogger,
	)
	convHandler := handlers.NewConversationHandler(st, slogger)

	tokens := make(map[string]middleware.AuthInfo, len(cfg.Users))
	for token, user := range cfg.Users {
		tokens[token] = middleware.AuthInfo{UserID: user.ID, APIKey: user.APIKey}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, routes.Handlers{
		Stream:        streamHandler,
		Conversations: convHandler,
	}, tokens)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slogger.Info("server starting", "port", cfg.Server.Port, "dataDir", cfg.Server.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slogger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slogger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slogger.Info("server stopped")
}
