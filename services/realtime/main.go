// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/meetingcanvas/pkg/logging"
	"github.com/AleutianAI/meetingcanvas/services/llm"
	"github.com/AleutianAI/meetingcanvas/services/realtime/agents"
	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/handlers"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/native"
	"github.com/AleutianAI/meetingcanvas/services/realtime/observability"
	"github.com/AleutianAI/meetingcanvas/services/realtime/persist"
	"github.com/AleutianAI/meetingcanvas/services/realtime/postprocess"
	"github.com/AleutianAI/meetingcanvas/services/realtime/research"
	"github.com/AleutianAI/meetingcanvas/services/realtime/routes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/scheduler"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("realtime-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildModelClient resolves the configured "provider:model" reference to
// a backend. A nil return means the producers run their offline paths.
func buildModelClient(cfg config.Config, logger *slog.Logger) llm.Client {
	provider, modelName := llm.ParseModel(cfg.Model)
	if cfg.FakeAI || provider == "test" {
		logger.Info("model disabled; running offline", "model", cfg.Model)
		return nil
	}
	if provider != "openai" {
		logger.Warn("unsupported model provider; running offline", "provider", provider)
		return nil
	}
	client, err := llm.NewOpenAIClient(modelName, logger)
	if err != nil {
		logger.Warn("model client unavailable; running offline", "error", err)
		return nil
	}
	return client
}

func main() {
	structured, err := logging.New(logging.Config{Service: "realtime", JSON: true})
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer structured.Close()
	logger := structured.Logger
	slog.SetDefault(logger)

	cfg := config.Load()
	observability.InitMetrics()

	// --- Init the tracer when a collector is configured ---
	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := persist.Open(persist.DefaultConfig(cfg.DBPath))
	if err != nil {
		log.Fatalf("failed to open the persistence store: %v", err)
	}
	defer kv.Close()

	mmCfg := mindmap.NewConfig()
	reducer := board.NewReducer()
	store := session.New(session.Config{
		TranscriptMaxEvents: cfg.TranscriptMaxEvents,
		TranscriptMaxAge:    cfg.TranscriptMaxAge,
	}, reducer, mmCfg.RootID, logger)

	snap, err := persist.Load(kv, mmCfg.RootID)
	if err != nil {
		logger.Warn("persisted state unreadable; starting fresh", "error", err)
	} else if !snap.Empty() {
		store.Restore(session.ExportSnapshot{
			BoardState:      snap.BoardState,
			MindmapState:    snap.MindmapState,
			DefaultLocation: snap.DefaultLocation,
			NoBrowse:        snap.NoBrowse,
			MindmapAI:       snap.MindmapAI,
		})
		logger.Info("restored persisted session",
			"cards", len(snap.BoardState.Cards), "nodes", len(snap.MindmapState.Nodes))
	}

	persister := persist.NewDebouncedPersister(kv, func() persist.Snapshot {
		exported := store.Export()
		return persist.Snapshot{
			BoardState:      exported.BoardState,
			MindmapState:    exported.MindmapState,
			DefaultLocation: exported.DefaultLocation,
			NoBrowse:        exported.NoBrowse,
			MindmapAI:       exported.MindmapAI,
		}
	}, cfg.PersistDebounce, logger)
	go persister.Run(ctx)
	store.SetPersister(persister)

	client := buildModelClient(cfg, logger)
	registry := research.DefaultRegistry(nil)
	proc := postprocess.New(postprocess.Config{
		DedupeEnabled:     cfg.DedupeTitleSimilarity,
		MaxPerMinute:      cfg.MaxCreatesPerMinute,
		MinBetweenCreates: cfg.MinBetweenCreates,
		BypassCardIDs:     native.BaseListCardIDs(),
	})

	boardProducer := agents.NewBoardProducer(cfg, store, client, registry, reducer, proc, logger)
	mindmapProducer := agents.NewMindmapProducer(cfg, mmCfg, store, client, logger)
	boardRunner := scheduler.NewRunner("board", cfg.AIMinInterval, boardProducer.Run, logger)
	mindmapRunner := scheduler.NewRunner("mindmap", cfg.MindmapAIMinInterval, mindmapProducer.Run, logger)

	router := gin.Default()
	if cfg.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware("realtime-service"))
	}
	routes.SetupRoutes(router, handlers.Deps{
		Cfg:               cfg,
		Store:             store,
		Mindmap:           mmCfg,
		Logger:            logger,
		RequestBoardRun:   func() { boardRunner.Request(ctx) },
		RequestMindmapRun: func() { mindmapRunner.Request(ctx) },
		SaveNow:           persister.SaveNow,
	})

	server := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		logger.Info("realtime server listening", "addr", cfg.Addr, "extractor", cfg.ExtractorMode())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := persister.SaveNow(); err != nil {
		logger.Error("final save failed", "error", err)
	}
}
