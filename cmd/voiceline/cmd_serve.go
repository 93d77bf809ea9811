package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/user/voiceline/internal/configcache"
	"github.com/user/voiceline/internal/controller"
	"github.com/user/voiceline/internal/maintenance"
	"github.com/user/voiceline/internal/paramstore"
	"github.com/user/voiceline/internal/registry"
	"github.com/user/voiceline/internal/store/agents"
	"github.com/user/voiceline/internal/store/analytics"
	"github.com/user/voiceline/internal/summary"
	"github.com/user/voiceline/internal/transport/openairt"
	"github.com/user/voiceline/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voiceline daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)
	ssmClient := ssm.NewFromConfig(awsCfg)

	params, err := paramstore.New(ssmClient)
	if err != nil {
		return fmt.Errorf("create parameter store client: %w", err)
	}

	// Stores
	agentStore, err := agents.New(dynamoClient, cfg.AWS.AgentsTable)
	if err != nil {
		return fmt.Errorf("create agent store: %w", err)
	}
	analyticsStore, err := analytics.New(dynamoClient, cfg.AWS.AnalyticsTable)
	if err != nil {
		return fmt.Errorf("create analytics store: %w", err)
	}

	// Agent config cache
	cacheOpts := []configcache.Option{
		configcache.WithTTL(time.Duration(cfg.Cache.TTLSeconds) * time.Second),
	}
	if cfg.Cache.Driver == string(configcache.DriverRedis) {
		cacheOpts = append(cacheOpts, configcache.WithRedisClient(redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
		})))
	}
	cache, err := configcache.New(configcache.Driver(cfg.Cache.Driver), cacheOpts...)
	if err != nil {
		return fmt.Errorf("create config cache: %w", err)
	}

	// Realtime transport. The API key comes from config or env, falling
	// back to the parameter store.
	apiKey := cfg.Realtime.APIKey
	if apiKey == "" {
		apiKey, err = params.GetParameter(ctx, cfg.AWS.APIKeyParameter)
		if err != nil {
			return fmt.Errorf("resolve realtime API key: %w", err)
		}
	}
	factory := openairt.NewFactory(openairt.Config{
		BaseURL: cfg.Realtime.BaseURL,
		Model:   cfg.Realtime.Model,
		APIKey:  apiKey,
	})

	// Summary pipeline
	budget, err := summary.NewBudget(cfg.Summary.Model, cfg.Summary.MaxTranscriptTokens)
	if err != nil {
		return fmt.Errorf("create token budget: %w", err)
	}
	summaryClient := summary.NewClient(summary.ClientConfig{
		Model:           cfg.Summary.Model,
		APIKeyParameter: cfg.AWS.APIKeyParameter,
		Temperature:     0.1,
	}, params)
	summaryStore, err := summary.NewStore(s3Client, cfg.AWS.SummaryBucket, dynamoClient, cfg.AWS.SummariesTable)
	if err != nil {
		return fmt.Errorf("create summary store: %w", err)
	}
	worker := summary.NewWorker(summaryClient, summaryStore, agentStore, budget, int64(cfg.Summary.Workers))

	// Controller
	reg := registry.New()
	ctrl := controller.New(controller.Params{
		Registry:  reg,
		Cache:     cache,
		Agents:    agentStore,
		Knowledge: agentStore,
		Analytics: analyticsStore,
		Summaries: worker,
		Transport: factory,

		DefaultVoice: cfg.Realtime.DefaultVoice,
		Temperature:  cfg.Realtime.Temperature,

		ReminderAfter: time.Duration(cfg.Inactivity.ReminderSeconds) * time.Second,
		EndCallAfter:  time.Duration(cfg.Inactivity.EndCallSeconds) * time.Second,
	})

	// Maintenance cron
	sched := maintenance.New(cache, reg, cfg.MaintenanceSchedule)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer sched.Stop()

	// Webhook HTTP server
	srv := webhook.NewServer(ctrl, reg)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv,
	}
	go func() {
		slog.Info("webhook server started", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	slog.Info("voiceline started",
		"listen", cfg.Listen,
		"log_level", cfg.LogLevel,
		"cache_driver", cfg.Cache.Driver,
		"realtime_model", cfg.Realtime.Model,
		"summary_model", cfg.Summary.Model,
		"reminder_seconds", cfg.Inactivity.ReminderSeconds,
		"end_call_seconds", cfg.Inactivity.EndCallSeconds,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "error", err)
	}

	// Finalize all active sessions, then let pending summaries finish.
	ctrl.Shutdown()
	if !worker.Drain(30 * time.Second) {
		slog.Warn("summary worker drain timed out")
	}
	return nil
}
