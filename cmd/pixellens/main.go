package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/v0xg/pixellens/internal/agent"
	"github.com/v0xg/pixellens/internal/browser"
	"github.com/v0xg/pixellens/internal/classifier"
	"github.com/v0xg/pixellens/internal/config"
	"github.com/v0xg/pixellens/internal/history"
	"github.com/v0xg/pixellens/internal/logger"
	"github.com/v0xg/pixellens/internal/report"
	"github.com/v0xg/pixellens/internal/runner"
	"github.com/v0xg/pixellens/internal/signature"
	"github.com/v0xg/pixellens/internal/snapshot"
	"github.com/v0xg/pixellens/internal/step"
)

var (
	configPath     string
	testCase       string
	timeout        time.Duration
	headless       bool
	save           string
	signaturesPath string
	provider       string
	model          string
	parallel       int
	screenshots    string
	allScreenshots bool
	historyPath    string
	logLevel       string
	logFile        string
	verbose        bool
	profile        string
	width          int
	height         int
	llmRate        int
)

// errSuiteFailed signals a completed run with failing cases; the report has
// already been printed.
var errSuiteFailed = errors.New("test suite failed")

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pixellens --config suite.yml [--test-case name]",
		Short: "Validate that tracking pixels fire for user journeys",
		Long: `pixellens drives a real browser through the steps of each test case, performing
natural-language actions with an AI agent, and checks that the expected tracking
pixels (GA4, Meta, TikTok, ...) fire during each step.

Example:
  pixellens --config checkout.yml --save results.xlsx`,
		Args:          cobra.NoArgs,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Test suite YAML file")
	pf.StringVar(&signaturesPath, "signatures", "", "Extra pixel signature YAML file")
	pf.StringVar(&historyPath, "history", "", "Run history database (run: record only when set; history: defaults to the user data dir)")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pf.StringVar(&logFile, "log-file", "", "Also write logs to this rotating file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress (same as --log-level debug)")

	f := rootCmd.Flags()
	f.StringVarP(&testCase, "test-case", "t", "", "Run only this test case")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "Per-step timeout (overrides default_config)")
	f.BoolVar(&headless, "headless", true, "Run the browser headless (overrides default_config)")
	f.StringVarP(&save, "save", "s", "", "Save results to a .json or .xlsx file")
	f.StringVar(&provider, "provider", "", "AI provider: claude, openai (default: from env or claude)")
	f.StringVar(&model, "model", "", "Specific model override")
	f.IntVarP(&parallel, "parallel", "p", 1, "Number of test cases to run at once")
	f.StringVar(&screenshots, "screenshots", "", "Directory for failed-step screenshots and journey GIFs")
	f.BoolVar(&allScreenshots, "all-screenshots", false, "Keep a screenshot of every step, not only failures")
	f.StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	f.IntVar(&width, "width", 1280, "Viewport width")
	f.IntVar(&height, "height", 720, "Viewport height")
	f.IntVar(&llmRate, "llm-rate", 30, "Maximum AI requests per minute across all cases (0 = unlimited)")
	_ = rootCmd.MarkPersistentFlagFilename("config", "yml", "yaml")

	rootCmd.AddCommand(validateCmd(), signaturesCmd(), historyCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSuiteFailed) {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		}
		os.Exit(1)
	}
}

func newLogger() *logger.ZeroLogger {
	level := logLevel
	if verbose {
		level = "debug"
	}
	return logger.New(logger.Options{Level: level, File: logFile})
}

func run(cmd *cobra.Command, _ []string) error {
	log := newLogger()

	fmt.Printf("→ Loading %s... ", configPath)
	suite, catalog, err := loadSuite()
	if err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Printf("done (%d test cases, %d pixel signatures)\n", len(suite.Cases), catalog.Len())

	// Explicit flags beat default_config.
	if cmd.Flags().Changed("timeout") {
		suite.Defaults.Timeout = timeout
	}
	if cmd.Flags().Changed("headless") {
		suite.Defaults.Headless = headless
	}
	if profile != "" && parallel > 1 {
		log.Warn("a browser profile cannot be shared; running cases one at a time", "profile", profile)
		parallel = 1
	}

	launcher := browser.NewLauncher(browser.Options{
		Headless:   suite.Defaults.Headless,
		Width:      width,
		Height:     height,
		ProfileDir: profile,
	}, log)

	opts := runner.Options{Step: suite.StepOptions(), Parallel: parallel}
	if screenshots != "" {
		opts.Recorder = snapshot.New(snapshot.Options{Dir: screenshots, All: allScreenshots, Journey: true})
	}
	printer := report.NewPrinter(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
	opts.OnStep = printer.Step
	opts.OnCase = printer.Case

	r := runner.New(
		runner.LauncherFunc(func(ctx context.Context) (runner.Session, error) {
			s, err := launcher.Launch(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		}),
		agentFactory(log),
		classifier.New(catalog),
		opts,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("→ Running test cases...")
	res, err := r.RunSuite(ctx, suite.Cases, testCase)
	if err != nil {
		return err
	}
	printer.Summary(res)

	if save != "" {
		fmt.Printf("→ Saving results to %s... ", save)
		if err := report.Save(save, res); err != nil {
			fmt.Println("failed")
			return err
		}
		fmt.Println("done")
	}

	if historyPath != "" {
		if err := recordHistory(ctx, res, log); err != nil {
			log.Err(err, "run history not saved")
		}
	}

	if !res.Success {
		return errSuiteFailed
	}
	return nil
}

// loadSuite reads the suite, builds the catalog from its signature file,
// --signatures and the builtins, and validates the suite against it.
func loadSuite() (*config.Suite, *signature.Catalog, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	suite, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := signature.Load(suite.Signatures, signaturesPath)
	if err != nil {
		return nil, nil, err
	}
	if err := suite.Validate(catalog); err != nil {
		return nil, nil, err
	}
	return suite, catalog, nil
}

// agentFactory builds the AI agent lazily per session. A missing API key
// only fails the steps that need the agent.
func agentFactory(log logger.Logger) runner.AgentFactory {
	p, err := agent.NewProvider(provider, model)
	if err != nil {
		return func(runner.Session) (step.ActionExecutor, error) { return nil, err }
	}
	log.Info("agent provider ready", "provider", p.Name())

	opts := agent.DefaultOptions()
	opts.Logger = log
	return agent.NewFactory(p, agent.NewLimiter(llmRate), opts)
}

func recordHistory(ctx context.Context, res runner.SuiteResult, log logger.Logger) error {
	store, err := history.Open(history.Options{Path: historyPath, Logger: log})
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveSuite(context.WithoutCancel(ctx), res, configPath)
}
