package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reviewpulse"
	"reviewpulse/internal/config"
)

func main() {
	configPath := flag.String("config", "reviewpulse.yaml", "path to config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides config)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reviewpulse-server: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	engine, err := reviewpulse.NewEngine(engineConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "reviewpulse-server: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	mux := newRouter(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      logging(recovery(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("reviewpulse-server: listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("reviewpulse-server: %v", err)
		}
	}()

	<-done
	log.Println("reviewpulse-server: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("reviewpulse-server: shutdown error: %v", err)
	}
	log.Println("reviewpulse-server: stopped")
}

func engineConfig(cfg *config.Config) reviewpulse.EngineConfig {
	return reviewpulse.EngineConfig{
		DBPath:         cfg.Database.Path,
		FeedBaseURL:    cfg.Collector.BaseURL,
		PageSize:       cfg.Collector.PageSize,
		RateLimitDelay: cfg.Collector.RateLimitDelay,
		RequestTimeout: cfg.Collector.RequestTimeout,
		LLMProvider:    cfg.LLM.Provider,
		LLMModel:       cfg.LLM.Model,
		LLMAPIKey:      cfg.LLM.APIKey,
		LLMEndpoint:    cfg.LLM.Endpoint,
		OllamaBaseURL:  cfg.LLM.OllamaBaseURL,
		MaxConcurrent:  cfg.LLM.MaxConcurrent,
	}
}
