package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/gemini-video-bot/internal/auth"
	"github.com/fpang/gemini-video-bot/internal/boot"
	"github.com/fpang/gemini-video-bot/internal/cli"
	"github.com/fpang/gemini-video-bot/internal/config"
	"github.com/fpang/gemini-video-bot/internal/delivery"
	"github.com/fpang/gemini-video-bot/internal/download"
	"github.com/fpang/gemini-video-bot/internal/events"
	"github.com/fpang/gemini-video-bot/internal/intake"
	"github.com/fpang/gemini-video-bot/internal/logging"
	"github.com/fpang/gemini-video-bot/internal/metrics"
	"github.com/fpang/gemini-video-bot/internal/pipeline"
	"github.com/fpang/gemini-video-bot/internal/store"
	"github.com/fpang/gemini-video-bot/internal/telegram"
	"github.com/fpang/gemini-video-bot/internal/veo"
)

// shutdownGrace bounds how long a running job may take to unwind on exit.
const shutdownGrace = 15 * time.Second

var envFileFlag string

var rootCmd = &cobra.Command{
	Use:   "video-bot",
	Short: "Telegram bot that generates videos with Gemini Veo",
	Long: `video-bot is a single-owner Telegram bot. The owner sets a Gemini API key
with /setkey, answers three questions after /generate (prompt, aspect ratio,
duration), and receives the generated video in the chat with live progress.

Configuration comes from the environment (optionally a .env file):
  BOT_TOKEN, OWNER_ID           required (BOT_TOKEN may live in SSM)
  GEMINI_API_KEY                optional default key for the owner
  ARCHIVE_BUCKET, JOBS_TABLE    optional S3 archive and DynamoDB job records
  NATS_URL, EVENT_BUS_NAME      optional job lifecycle events`,
	SilenceUsage: true,
	RunE:         runBot,
}

func init() {
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", ".env", "dotenv file to load before reading the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.LoadFiles(envFileFlag, ".env.local")
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.OwnerID == 0 {
		return errors.New("OWNER_ID is required")
	}
	if cfg.TempDir != "" {
		if cfg.TempDir, err = cli.PrepareDirectory(cfg.TempDir); err != nil {
			return fmt.Errorf("temp directory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// AWS is only needed for optional resources and SSM-held secrets.
	var (
		awsCfg    *aws.Config
		paramsSrc boot.ParameterGetter
	)
	if cfg.BotToken == "" || cfg.ArchiveBucket != "" || cfg.JobsTable != "" || cfg.EventBusName != "" {
		clients, err := boot.InitAWS(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("AWS unavailable, AWS-backed features disabled")
		} else {
			awsCfg = &clients.Config
			paramsSrc = clients.SSM
		}
	}

	token, err := boot.LoadSecret(ctx, paramsSrc, "BOT_TOKEN", cfg.SSMBotTokenParam)
	if err != nil {
		return fmt.Errorf("bot token: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("connect to Telegram: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("Telegram bot authorized")

	startup := boot.StartupLog("video-bot", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("model", cfg.Model).
		Config("pollInterval", cfg.PollInterval.String()).
		Config("maxPollDuration", cfg.MaxPollDuration.String()).
		Config("historyLimit", strconv.Itoa(cfg.HistoryLimit))

	opts := []pipeline.Option{
		pipeline.WithLedger(pipeline.NewLedger(cfg.HistoryLimit)),
		pipeline.WithObserver(metrics.JobObserver{}),
	}

	var records store.JobStore = store.NewMemoryStore()
	var botOpts []telegram.Option
	if awsCfg != nil {
		if dyn := boot.InitDynamoOptional(*awsCfg, cfg.JobsTable); dyn != nil {
			records = dyn
			startup.DynamoTable("jobs", cfg.JobsTable)
		}
		if s3Client := boot.InitS3Optional(*awsCfg, cfg.ArchiveBucket); s3Client != nil {
			botOpts = append(botOpts, telegram.WithArchive(delivery.NewS3Archive(s3Client, cfg.ArchiveBucket, cfg.ArchivePrefix)))
			startup.S3Bucket("archive", cfg.ArchiveBucket)
		}
		startup.SSMParam("botToken", cfg.SSMBotTokenParam).SSMParam("apiKey", cfg.SSMAPIKeyParam)
	}
	opts = append(opts, pipeline.WithObserver(store.Observer{Store: records}))
	botOpts = append(botOpts, telegram.WithRecords(records))

	publishers := eventPublishers(cfg, awsCfg, startup)
	if len(publishers) > 0 {
		obs := &events.Observer{Publishers: publishers}
		defer obs.Close()
		opts = append(opts, pipeline.WithObserver(obs))
	}
	startup.Feature("archive", cfg.ArchiveBucket != "" && awsCfg != nil).
		Feature("dynamoRecords", cfg.JobsTable != "" && awsCfg != nil).
		Feature("events", len(publishers) > 0)

	orch := pipeline.New(veo.NewService(cfg.Model, veo.NewGeminiClient), download.NewFetcher(), cfg.Pipeline(), opts...)

	settings := intake.NewSettingsStore()
	owner := strconv.FormatInt(cfg.OwnerID, 10)
	if key, err := boot.LoadSecret(ctx, paramsSrc, "GEMINI_API_KEY", cfg.SSMAPIKeyParam); err == nil {
		settings.SetAPIKey(owner, key)
		log.Info().Str("key", auth.MaskKey(key)).Msg("Default API key loaded for owner")
	} else {
		log.Info().Msg("No default API key, the owner must use /setkey")
	}

	client := telegram.NewClient(api)
	bot := telegram.NewBot(client, cfg.OwnerID, orch, settings, auth.Validator{NewClient: veo.NewGeminiClient}, botOpts...)

	startup.Log()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	err = bot.Run(ctx, updates)

	// The signal context is already done here; give the job its own grace.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if serr := orch.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Dur("grace", shutdownGrace).Msg("Job did not finish before exit")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Bot stopped")
	return nil
}

// eventPublishers connects the configured event sinks. A sink that cannot
// be reached is logged and skipped.
func eventPublishers(cfg config.Config, awsCfg *aws.Config, startup *logging.StartupLogger) []events.Publisher {
	var pubs []events.Publisher
	if cfg.NATSURL != "" {
		p, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, job events not published there")
		} else {
			pubs = append(pubs, p)
			startup.NATSSubject("jobs", p.Subject())
		}
	}
	if awsCfg != nil {
		if eb := boot.InitEventBridgeOptional(*awsCfg, cfg.EventBusName); eb != nil {
			pubs = append(pubs, events.NewEventBridgePublisher(eb, cfg.EventBusName))
			startup.EventBus("jobs", cfg.EventBusName)
		}
	}
	return pubs
}
