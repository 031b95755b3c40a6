// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The gateway service fronts the Stationwise assistant: it classifies
// queries, injects location context, answers facility questions from
// aggregator data, and streams everything else through an AI provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stationwise/stationwise/pkg/logging"
	"github.com/stationwise/stationwise/services/gateway/authverify"
	"github.com/stationwise/stationwise/services/gateway/cards"
	"github.com/stationwise/stationwise/services/gateway/conversation"
	"github.com/stationwise/stationwise/services/gateway/facilities"
	"github.com/stationwise/stationwise/services/gateway/handlers"
	"github.com/stationwise/stationwise/services/gateway/middleware"
	"github.com/stationwise/stationwise/services/gateway/nodecontext"
	"github.com/stationwise/stationwise/services/gateway/nodestore"
	"github.com/stationwise/stationwise/services/gateway/observability"
	"github.com/stationwise/stationwise/services/gateway/provider"
	"github.com/stationwise/stationwise/services/gateway/ratelimit"
	"github.com/stationwise/stationwise/services/gateway/routes"
	"github.com/stationwise/stationwise/services/gateway/traps"
)

const serviceName = "assistant-gateway"

// env reads a variable with the usual copy-paste debris trimmed.
func env(key, fallback string) string {
	v := strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"' ")
	if v == "" {
		return fallback
	}
	return v
}

// initTracer wires OTLP gRPC trace export when an endpoint is configured.
// Returns a shutdown func; a no-op when tracing is off.
func initTracer(ctx context.Context) (func(context.Context) error, error) {
	endpoint := env("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if endpoint == "" {
		slog.Info("tracing disabled, no OTLP endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create OTLP connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("tracing enabled", "endpoint", endpoint)
	return tp.Shutdown, nil
}

// selectProvider picks the AI backend from environment config. A nil
// provider with a nil error means no provider was asked for; the LLM
// branch answers 501 and the card branches keep working. A non-nil error
// means ASSISTANT_PROVIDER named a backend whose credentials are unset,
// which the handler surfaces as 500 CONFIG_ERROR.
func selectProvider() (provider.Provider, error) {
	difyURL := env("DIFY_API_URL", "")
	difyKey := env("DIFY_API_KEY", "")
	workflowURL := env("DIFY_WORKFLOW_URL", "")
	openaiKey := env("OPENAI_API_KEY", "")

	switch strings.ToLower(env("ASSISTANT_PROVIDER", "")) {
	case "dify":
		if difyURL != "" && difyKey != "" {
			return provider.NewDifyChat(difyURL, difyKey), nil
		}
		return nil, errors.New("ASSISTANT_PROVIDER=dify but DIFY_API_URL/DIFY_API_KEY are unset")
	case "workflow":
		if workflowURL != "" {
			return provider.NewDifyWorkflow(workflowURL, difyKey), nil
		}
		return nil, errors.New("ASSISTANT_PROVIDER=workflow but DIFY_WORKFLOW_URL is unset")
	case "openai":
		if openaiKey != "" {
			return provider.NewOpenAIChat(openaiKey, env("OPENAI_BASE_URL", ""), env("OPENAI_MODEL", "")), nil
		}
		return nil, errors.New("ASSISTANT_PROVIDER=openai but OPENAI_API_KEY is unset")
	case "none":
		return nil, nil
	}

	if difyURL != "" && difyKey != "" {
		return provider.NewDifyChat(difyURL, difyKey), nil
	}
	if workflowURL != "" {
		return provider.NewDifyWorkflow(workflowURL, difyKey), nil
	}
	if openaiKey != "" {
		return provider.NewOpenAIChat(openaiKey, env("OPENAI_BASE_URL", ""), env("OPENAI_MODEL", "")), nil
	}
	return nil, nil
}

func main() {
	logger, err := logging.New(logging.Config{
		Service: serviceName,
		Level:   logging.ParseLevel(env("LOG_LEVEL", "info")),
		LogDir:  env("LOG_DIR", ""),
		JSON:    true,
	})
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.SetDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := initTracer(ctx)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	observability.InitMetrics()

	// Collaborators. Each is optional; the pipeline degrades without them.
	var store nodecontext.NodeStore
	if u := env("NODE_STORE_URL", ""); u != "" {
		store = nodestore.NewClient(u)
	} else {
		slog.Warn("NODE_STORE_URL unset, location context disabled")
	}

	var agg cards.Aggregator
	if u := env("FACILITIES_URL", ""); u != "" {
		agg = facilities.NewClient(u)
	} else {
		slog.Warn("FACILITIES_URL unset, facility cards will degrade")
	}

	var verifier middleware.TokenVerifier
	if u := env("AUTH_VERIFY_URL", ""); u != "" {
		verifier = authverify.NewClient(u)
	}

	ttl := conversation.DefaultTTL
	if raw := env("CONVERSATION_TTL", ""); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("unparseable CONVERSATION_TTL, using default", "value", raw, "error", err)
		} else {
			ttl = parsed
		}
	}
	convStore, err := conversation.New(
		env("CONVERSATION_STORE", "memory"),
		env("CONVERSATION_STORE_PATH", ""),
		ttl,
	)
	if err != nil {
		slog.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer convStore.Close()

	table := traps.NewTable(env("TRAP_RULES_PATH", ""))

	aiProvider, provErr := selectProvider()
	switch {
	case provErr != nil:
		slog.Error("AI provider misconfigured, LLM branch will answer 500", "error", provErr)
	case aiProvider == nil:
		slog.Warn("no AI provider configured, LLM branch will answer 501")
	default:
		slog.Info("AI provider selected", "provider", aiProvider.Name())
	}

	limiter := ratelimit.New(env("ASSISTANT_RATE_LIMIT", ""))
	handler := handlers.NewAssistantHandler(
		limiter,
		nodecontext.NewBuilder(store, table),
		cards.NewToolResponder(agg),
		aiProvider,
		convStore,
	)
	handler.ProviderMisconfigured = provErr != nil

	if env("GIN_MODE", "") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, handler, verifier)

	port := env("GATEWAY_PORT", "8790")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("assistant gateway listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return table.Watch(groupCtx)
	})

	group.Go(func() error {
		return limiter.SweepLoop(groupCtx, time.Minute)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return shutdownTracer(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped cleanly")
}
