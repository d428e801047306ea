package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"triage-client/handler"
	"triage-client/internal/config"
	"triage-client/internal/integrations/paramstore"
	"triage-client/internal/integrations/triageapi"
	"triage-client/internal/logging"
	"triage-client/internal/metrics"
	"triage-client/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:           "triage",
	Short:         "Interactive symptom triage client",
	Long:          `triage talks to the symptom triage service: describe your symptoms, answer follow-up questions and receive an urgency recommendation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Persistent flags override the matching TRIAGE_* environment variables.
	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default .env)")
	rootCmd.PersistentFlags().String("api-url", "", "Triage service base URL")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-request timeout")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(chatCmd, statusCmd, pingCmd)
}

// app holds the dependencies shared by subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	aws      *aws.Config
}

func newApp(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logging.New(level),
		registry: registry,
		recorder: recorder,
	}
	if cfg.UsesAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		a.aws = &awsCfg
	}
	return a, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL, _ = flags.GetString("api-url")
		cfg.ParamPrefix = ""
	}
	if flags.Changed("timeout") {
		cfg.HTTPTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg.Validate()
}

// apiClient builds the transport client, resolving the base URL from the
// parameter store when a prefix is configured.
func (a *app) apiClient(ctx context.Context) (*triageapi.Client, error) {
	baseURL := a.cfg.APIURL
	if a.cfg.ParamPrefix != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(*a.aws))
		if err != nil {
			return nil, fmt.Errorf("failed to create SSM client: %w", err)
		}
		resolver, err := paramstore.NewBaseURLResolver(ssmClient, a.cfg.ParamPrefix)
		if err != nil {
			return nil, err
		}
		baseURL, err = resolver.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("resolved base URL from parameter store", "param", resolver.Name(), "url", baseURL)
	}

	return triageapi.NewClient(baseURL,
		triageapi.WithTimeout(a.cfg.HTTPTimeout),
		triageapi.WithObserver(a.recorder),
	)
}

// archiver returns the DynamoDB archive, or nil when no table is configured.
func (a *app) archiver() (handler.Archiver, error) {
	if a.cfg.ArchiveTable == "" {
		return nil, nil
	}
	client, err := repository.New(awsdynamodb.NewFromConfig(*a.aws), a.cfg.ArchiveTable)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}
	return client, nil
}

// serveMetrics starts the metrics endpoint in the background when configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.registry, a.logger); err != nil {
			a.logger.Warn("metrics endpoint stopped", "err", err)
		}
	}()
}

func requestContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
