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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/gemini-video-bot/internal/auth"
	"github.com/fpang/gemini-video-bot/internal/boot"
	"github.com/fpang/gemini-video-bot/internal/cli"
	"github.com/fpang/gemini-video-bot/internal/config"
	"github.com/fpang/gemini-video-bot/internal/delivery"
	"github.com/fpang/gemini-video-bot/internal/download"
	"github.com/fpang/gemini-video-bot/internal/intake"
	"github.com/fpang/gemini-video-bot/internal/logging"
	"github.com/fpang/gemini-video-bot/internal/metrics"
	"github.com/fpang/gemini-video-bot/internal/pipeline"
	"github.com/fpang/gemini-video-bot/internal/veo"
)

// CLI flags
var (
	promptFlag       string
	aspectFlag       string
	durationFlag     int
	outDirFlag       string
	modelFlag        string
	s3BucketFlag     string
	s3PrefixFlag     string
	pollIntervalFlag time.Duration
	maxWaitFlag      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "veo-cli",
	Short: "Generate one video with Gemini Veo from the terminal",
	Long: `veo-cli runs a single video generation job: it submits the prompt to Gemini
Veo, polls until the video is ready, downloads it, and writes it to a local
directory (and optionally an S3 bucket). Press Ctrl+C to cancel the job.

Examples:
  veo-cli --prompt "a paper boat drifting down a rainy street" --aspect 9:16 --duration 8
  veo-cli -p "timelapse of clouds over mountains" -o ./videos --s3-bucket my-archive
  veo-cli  # Interactive mode - prompts for prompt, aspect ratio and duration`,
	SilenceUsage: true,
	RunE:         runCLI,
}

func init() {
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Text description of the video")
	rootCmd.Flags().StringVarP(&aspectFlag, "aspect", "a", "", "Aspect ratio: 16:9 or 9:16")
	rootCmd.Flags().IntVarP(&durationFlag, "duration", "d", 0, "Duration in seconds (1-60)")
	rootCmd.Flags().StringVarP(&outDirFlag, "out-dir", "o", ".", "Directory the video is written to")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Veo model (default from VEO_MODEL or "+veo.DefaultModel+")")
	rootCmd.Flags().StringVar(&s3BucketFlag, "s3-bucket", "", "Also archive the video to this S3 bucket")
	rootCmd.Flags().StringVar(&s3PrefixFlag, "s3-prefix", "videos", "Key prefix inside the S3 bucket")
	rootCmd.Flags().DurationVar(&pollIntervalFlag, "poll-interval", 0, "Status poll interval (default from POLL_INTERVAL or 5s)")
	rootCmd.Flags().DurationVar(&maxWaitFlag, "max-wait", 0, "Give up polling after this long (0 = wait forever)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCLI(cmd *cobra.Command, args []string) error {
	logging.Init()
	log.Debug().Str("commit", commitHash).Str("built", buildTime).Msg("veo-cli starting")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if pollIntervalFlag > 0 {
		cfg.PollInterval = pollIntervalFlag
	}
	if maxWaitFlag > 0 {
		cfg.MaxPollDuration = maxWaitFlag
	}

	ctx := context.Background()
	apiKey := cli.InitAPIKey(ctx, auth.Validator{NewClient: veo.NewGeminiClient})

	req, err := buildRequest(apiKey)
	if err != nil {
		return err
	}

	local, err := delivery.NewLocalDir(outDirFlag)
	if err != nil {
		return err
	}
	var deliverer pipeline.Deliverer = local
	if s3BucketFlag != "" {
		clients, err := boot.InitAWS(ctx)
		if err != nil {
			return err
		}
		archive := delivery.NewS3Archive(boot.InitS3Optional(clients.Config, s3BucketFlag), s3BucketFlag, s3PrefixFlag)
		deliverer = &delivery.Tee{Primary: local, Archive: archive}
	}

	orch := pipeline.New(
		veo.NewService(cfg.Model, veo.NewGeminiClient),
		download.NewFetcher(),
		cfg.Pipeline(),
		pipeline.WithObserver(metrics.JobObserver{}),
	)

	started := time.Now()
	handle, err := orch.StartJob("cli", req, pipeline.Destination{
		Status:   cli.NewConsoleStatus(os.Stderr),
		Delivery: deliverer,
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-handle.Done():
	case <-sigCh:
		log.Warn().Msg("Interrupted, cancelling job")
		if err := orch.Cancel(handle.ID); err != nil && !errors.Is(err, pipeline.ErrNoActiveJob) {
			log.Error().Err(err).Msg("Cancel failed")
		}
		<-handle.Done()
	}

	// Let the metrics observer emit before the process exits.
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := orch.Shutdown(flushCtx); err != nil {
		log.Warn().Err(err).Msg("Job metrics not flushed")
	}

	out, _ := handle.Outcome()
	if out.State != pipeline.StateSucceeded {
		return out.Err
	}
	log.Info().
		Str("path", local.LastPath).
		Str("elapsed", cli.FormatDurationShort(time.Since(started))).
		Msg("Video saved")
	fmt.Printf("%s (%s)\n", local.LastPath, cli.FormatBytes(out.AssetBytes))
	return nil
}

// buildRequest fills missing flags interactively.
func buildRequest(apiKey string) (pipeline.Request, error) {
	prompt := promptFlag
	if prompt == "" {
		prompt = cli.PromptLine(os.Stdin, os.Stderr, "Prompt", "")
	}

	aspect := pipeline.AspectRatio(aspectFlag)
	if aspectFlag == "" {
		answer := cli.PromptLine(os.Stdin, os.Stderr, "Aspect ratio (1 = 16:9, 2 = 9:16)", "1")
		aspect = intake.ParseAspectRatio(answer)
	}

	duration := durationFlag
	if duration == 0 {
		answer := cli.PromptLine(os.Stdin, os.Stderr, "Duration in seconds (1-60)", "8")
		n, err := strconv.Atoi(answer)
		if err != nil {
			return pipeline.Request{}, pipeline.NewError(pipeline.KindInvalidInput, "duration must be a number", err)
		}
		duration = n
	}

	req := pipeline.Request{
		Prompt:          prompt,
		AspectRatio:     aspect,
		DurationSeconds: duration,
		Credential:      apiKey,
	}
	return req, req.Validate()
}
