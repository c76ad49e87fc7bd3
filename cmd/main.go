package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"coach-agent/handler"
	"coach-agent/internal/config"
	"coach-agent/internal/integrations/gemini"
	"coach-agent/internal/integrations/paramstore"
	"coach-agent/internal/ledger"
	"coach-agent/internal/repository"
	"coach-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger(os.Stdout)
	must(err, "failed to build logger")
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	must(err, "failed to load AWS config")

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	must(err, "failed to create SSM client")

	turnStore, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	must(err, "failed to create conversation store")

	ledgerStore, err := ledger.Open(cfg.LedgerDSN)
	must(err, "failed to open ledger")
	defer ledgerStore.Close()

	geminiClient, err := gemini.NewClient(ssmClient, cfg.ParamPrefix,
		gemini.WithModel(cfg.Gemini.Model),
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.Gemini.Timeout()}),
		gemini.WithRetryPolicy(gemini.RetryPolicy{
			MaxAttempts: cfg.Gemini.MaxAttempts,
			Backoff:     gemini.LinearBackoff(cfg.Gemini.Backoff()),
		}),
		gemini.WithLogger(logger),
	)
	must(err, "failed to create Gemini client")

	// ---- Handler ----
	coach, err := usecase.NewCoachService(ledgerStore, turnStore, geminiClient, cfg.Coach.HistoryLimit, cfg.Coach.MaxMessageLength)
	must(err, "failed to create coach service")

	h, err := handler.NewHandler(coach)
	must(err, "failed to create handler")

	logger.Info("coach service starting",
		"table", cfg.StateTable,
		"model", cfg.Gemini.Model,
		"historyLimit", cfg.Coach.HistoryLimit,
	)
	lambda.Start(h.Handle)
}

func must(err error, msg string) {
	if err != nil {
		slog.Error(msg, "err", err)
		os.Exit(1)
	}
}
