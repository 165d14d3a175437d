// Package main provides the entry point for the bookvox CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/coordinator"
	"github.com/dgnsrekt/bookvox/internal/dashboard"
	"github.com/dgnsrekt/bookvox/internal/engine"
	"github.com/dgnsrekt/bookvox/internal/engine/mock"
	"github.com/dgnsrekt/bookvox/internal/engine/speechma"
	"github.com/dgnsrekt/bookvox/internal/manifest"
	"github.com/dgnsrekt/bookvox/internal/store"
	"github.com/dgnsrekt/bookvox/internal/voices"
	"github.com/dgnsrekt/bookvox/internal/worker"
	"github.com/dgnsrekt/bookvox/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	outputDir   string
	voiceQuery  string
	workers     int
	threshold   int
	modeName    string
	stagger     time.Duration
	batchSize   int
	delay       time.Duration
	retries     int
	engineName  string
	baseURL     string
	probe       bool
	fresh       bool
	retryFailed bool
	noUI        bool
	mouse       bool

	mode coordinator.Mode

	rootCmd = &cobra.Command{
		Use:   "bookvox CHUNKS.json",
		Short: "Convert a chunked book to audio, across parallel workers",
		Long: paragraph(
			fmt.Sprintf("\nConvert a chunked book to audio %s. Workers pause at verification checkpoints, and interrupted runs pick up where they left off.", keyword("across parallel workers")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		RunE:             execute,
	}

	voicesCmd = &cobra.Command{
		Use:   "voices",
		Short: "List available synthesis voices",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			for _, v := range voices.All() {
				fmt.Printf("%-24s %-10s %-16s %s\n", v.ID, v.Name, v.Language, v.Gender)
			}
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	outputDir = viper.GetString("output")
	voiceQuery = viper.GetString("voice")
	workers = viper.GetInt("workers")
	threshold = viper.GetInt("threshold")
	modeName = viper.GetString("mode")
	stagger = viper.GetDuration("stagger")
	batchSize = viper.GetInt("batch_size")
	delay = viper.GetDuration("delay")
	retries = viper.GetInt("retries")
	engineName = viper.GetString("engine")
	baseURL = viper.GetString("base_url")
	probe = viper.GetBool("probe")
	mouse = viper.GetBool("mouse")

	// Subcommands like `config` have no run options to validate.
	if cmd != rootCmd {
		return nil
	}

	var err error
	if mode, err = coordinator.ParseMode(modeName); err != nil {
		return err
	}

	if engineName != "speechma" && engineName != "mock" {
		return fmt.Errorf("unknown engine %q (try speechma or mock)", engineName)
	}
	if threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", threshold)
	}
	if retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", retries)
	}
	if workers < 0 || workers > coordinator.MaxWorkers {
		return fmt.Errorf("workers must be between 0 (auto) and %d, got %d", coordinator.MaxWorkers, workers)
	}
	if outputDir, err = expandPath(outputDir); err != nil {
		return err
	}
	return nil
}

func execute(_ *cobra.Command, args []string) error {
	chunks, err := book.Load(args[0])
	if err != nil {
		return err
	}

	dst, err := store.Open(outputDir)
	if err != nil {
		return err
	}

	plan, err := buildPlan(chunks, dst)
	if err != nil {
		return err
	}
	if plan.Resumed {
		done := plan.Manifest.Total() - len(plan.Missing)
		fmt.Printf("Resuming: %d of %d units already converted.\n", done, plan.Manifest.Total())
	}
	if len(plan.Missing) == 0 {
		fmt.Println("Nothing to do: every unit is already converted.")
		return nil
	}

	voice, err := voices.Find(voiceQuery)
	if err != nil {
		return err
	}

	sender, err := buildSender()
	if err != nil {
		return err
	}

	if workers == 0 {
		workers = coordinator.OptimalWorkers(len(plan.Missing), threshold, coordinator.MaxWorkers)
		log.Info("sized worker pool from remaining units", "workers", workers)
	}

	cfg := coordinator.Config{
		Voice:         voice.ID,
		Sender:        sender,
		Manifest:      plan.Manifest,
		Store:         dst,
		Workers:       workers,
		Threshold:     threshold,
		Mode:          mode,
		StaggerDelay:  stagger,
		BatchSize:     batchSize,
		RequestDelay:  delay,
		RetryAttempts: retries,
		RetryDelay:    0,
	}
	// The mock engine has no verification step to wait on.
	if engineName == "mock" {
		cfg.Checkpoints = autoConfirm{}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coord := coordinator.New(cfg)

	if probe && cfg.Workers > 1 && engineName != "mock" {
		report, err := coord.Probe(ctx, plan.Missing)
		switch {
		case errors.Is(err, coordinator.ErrSharedLimit):
			fmt.Println("Safety probe found a shared rate limit; continuing with a single worker.")
			cfg.Workers = 1
			coord = coordinator.New(cfg)
		case errors.Is(err, coordinator.ErrProbeTooSmall):
			log.Debug("skipping safety probe", "err", err)
		case err != nil:
			return err
		default:
			fmt.Printf("Safety probe passed: %d units converted in %s.\n",
				report.Completed, report.Duration.Round(time.Second))
		}
		// Probe conversions count; narrow the run to what is left.
		plan.Missing = remaining(chunks, plan.Manifest)
		if len(plan.Missing) == 0 {
			fmt.Println("The probe finished the whole book.")
			return nil
		}
	}

	var summary coordinator.Summary
	if term.IsTerminal(int(os.Stdout.Fd())) && !noUI {
		summary, err = runTUI(ctx, cancel, coord, plan.Missing)
	} else {
		summary, err = runHeadless(ctx, cancel, coord, plan.Missing)
		fmt.Print(dashboard.RenderSummary(summary))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if !summary.Success() {
		return fmt.Errorf("%d units failed and %d remain; run again to retry",
			len(summary.FailedIndices), len(summary.MissingIndices))
	}
	return nil
}

// buildPlan resolves prior progress into a run plan.
func buildPlan(chunks []book.Chunk, dst *store.Dir) (*manifest.Plan, error) {
	if fresh {
		return manifest.Fresh(outputDir, chunks)
	}

	plan, err := manifest.Resume(outputDir, chunks, dst, retryFailed)
	if errors.Is(err, manifest.ErrCorrupt) {
		return nil, fmt.Errorf("%w (use --fresh to discard prior progress)", err)
	}
	return plan, err
}

func buildSender() (engine.Sender, error) {
	if engineName == "mock" {
		return mock.New(), nil
	}
	return speechma.New(speechma.Config{BaseURL: baseURL})
}

// remaining maps the manifest's missing indices back onto chunks.
func remaining(chunks []book.Chunk, m *manifest.Manifest) []book.Chunk {
	indices := m.Missing()
	out := make([]book.Chunk, 0, len(indices))
	for _, i := range indices {
		out = append(out, chunks[i])
	}
	return out
}

// autoConfirm clears checkpoints immediately, for engines with no
// verification step.
type autoConfirm struct{}

func (autoConfirm) Wait(ctx context.Context, _ int, _ worker.Stats) error {
	return ctx.Err()
}

func runTUI(ctx context.Context, cancel context.CancelFunc, coord *coordinator.Coordinator, chunks []book.Chunk) (coordinator.Summary, error) {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return coordinator.Summary{}, fmt.Errorf("error parsing config: %v", err)
	}
	cfg.EnableMouse = mouse

	done := make(chan ui.RunResult, 1)
	var result ui.RunResult
	go func() {
		summary, err := coord.Run(ctx, chunks)
		result = ui.RunResult{Summary: summary, Err: err}
		done <- result
	}()

	// The UI quits only after the run result has been delivered on
	// done, so result is settled once Run returns.
	if _, err := ui.NewProgram(cfg, coord, done, cancel).Run(); err != nil {
		cancel()
		return coordinator.Summary{}, fmt.Errorf("unable to run tui program: %w", err)
	}
	return result.Summary, result.Err
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle between rootCmd and validateOptions.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return validateOptions(cmd)
	}
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "./audio", "directory for audio and the run manifest")
	rootCmd.Flags().StringVarP(&voiceQuery, "voice", "v", voices.Default, "synthesis voice (ID, name, or rough guess)")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "worker pool size (0 sizes from the book)")
	rootCmd.Flags().IntVar(&threshold, "threshold", 55, "successful requests before a checkpoint pause")
	rootCmd.Flags().StringVarP(&modeName, "mode", "m", "simultaneous", "checkpoint scheduling: simultaneous, staggered, or batched")
	rootCmd.Flags().DurationVar(&stagger, "stagger", 10*time.Second, "start gap between workers (staggered mode)")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 3, "workers per group (batched mode)")
	rootCmd.Flags().DurationVar(&delay, "delay", 500*time.Millisecond, "pacing between requests within a worker")
	rootCmd.Flags().IntVar(&retries, "retries", 3, "attempts per chunk before it is marked failed")
	rootCmd.Flags().StringVar(&engineName, "engine", "speechma", "conversion engine: speechma or mock")
	rootCmd.Flags().StringVar(&baseURL, "base-url", "https://speechma.com", "engine endpoint")
	rootCmd.Flags().BoolVar(&probe, "probe", true, "run the two-worker safety probe before going wide")
	rootCmd.Flags().BoolVar(&fresh, "fresh", false, "discard prior progress and start over")
	rootCmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "re-attempt units a prior run marked failed")
	rootCmd.Flags().BoolVar(&noUI, "no-ui", false, "plain output, confirm checkpoints on stdin")
	rootCmd.Flags().BoolVar(&mouse, "mouse", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("threshold", rootCmd.Flags().Lookup("threshold"))
	_ = viper.BindPFlag("mode", rootCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("stagger", rootCmd.Flags().Lookup("stagger"))
	_ = viper.BindPFlag("batch_size", rootCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("delay", rootCmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag("retries", rootCmd.Flags().Lookup("retries"))
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("base_url", rootCmd.Flags().Lookup("base-url"))
	_ = viper.BindPFlag("probe", rootCmd.Flags().Lookup("probe"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("output", "./audio")
	viper.SetDefault("voice", voices.Default)
	viper.SetDefault("threshold", 55)
	viper.SetDefault("mode", "simultaneous")
	viper.SetDefault("stagger", "10s")
	viper.SetDefault("batch_size", 3)
	viper.SetDefault("delay", "500ms")
	viper.SetDefault("retries", 3)
	viper.SetDefault("engine", "speechma")
	viper.SetDefault("base_url", "https://speechma.com")
	viper.SetDefault("probe", true)

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd)
}

func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("unable to expand path %q: %w", p, err)
	}
	return filepath.Abs(expanded)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "bookvox")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "bookvox")}, dirs...)
	}

	if c := os.Getenv("BOOKVOX_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("bookvox")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("bookvox")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "bookvox.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
