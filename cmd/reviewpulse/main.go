package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"reviewpulse"
	"reviewpulse/internal/config"
)

var (
	configPath string
	cfg        *config.Config
)

var appIDPattern = regexp.MustCompile(`^\d+$`)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewpulse",
		Short: "Collect app store reviews and analyze them with an LLM",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "reviewpulse.yaml", "config file path")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newEngine() (*reviewpulse.Engine, error) {
	return reviewpulse.NewEngine(reviewpulse.EngineConfig{
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
	})
}

func validAppID(appID string) error {
	if !appIDPattern.MatchString(appID) {
		return fmt.Errorf("app id must be numeric, got %q", appID)
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func collectCmd() *cobra.Command {
	var limit int
	var source string
	cmd := &cobra.Command{
		Use:   "collect <app-id>",
		Short: "Fetch reviews for an app and store the new ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := args[0]
			if err := validAppID(appID); err != nil {
				return err
			}
			if source == "" {
				source = cfg.Collector.Source
			}

			engine, err := newEngine()
			if err != nil {
				return fmt.Errorf("failed to start engine: %w", err)
			}
			defer engine.Close()

			result, err := engine.CollectReviews(context.Background(), source, appID, limit)
			if err != nil {
				return err
			}

			fmt.Printf("Collected %d reviews for app %s (%d new)\n",
				result.TotalCollected, appID, result.NewSaved)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of reviews to collect")
	cmd.Flags().StringVarP(&source, "source", "s", "", "review source (default from config)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <app-id>",
		Short: "Run sentiment, keyword and insight analysis over unanalyzed reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := args[0]
			if err := validAppID(appID); err != nil {
				return err
			}

			engine, err := newEngine()
			if err != nil {
				return fmt.Errorf("failed to start engine: %w", err)
			}
			defer engine.Close()

			result, err := engine.AnalyzeReviews(context.Background(), appID)
			if err != nil {
				return err
			}

			fmt.Printf("Analyzed %d new reviews for app %s (%d stored total)\n",
				result.New, appID, result.TotalReviews)
			return nil
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <app-id>",
		Short: "Show aggregated ratings, sentiments, keywords and insights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := args[0]
			if err := validAppID(appID); err != nil {
				return err
			}

			engine, err := newEngine()
			if err != nil {
				return fmt.Errorf("failed to start engine: %w", err)
			}
			defer engine.Close()

			metrics, err := engine.AppMetrics(appID)
			if err != nil {
				return err
			}
			return printJSON(metrics)
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <app-id>",
		Short: "Dump all stored reviews for an app as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := args[0]
			if err := validAppID(appID); err != nil {
				return err
			}

			engine, err := newEngine()
			if err != nil {
				return fmt.Errorf("failed to start engine: %w", err)
			}
			defer engine.Close()

			reviews, err := engine.ExportReviews(appID)
			if err != nil {
				return err
			}
			return printJSON(reviews)
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(config.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
