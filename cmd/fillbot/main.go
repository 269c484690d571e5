package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"yashubustudio/fillbot/fillbot"
	"yashubustudio/fillbot/history"
	"yashubustudio/fillbot/internal/app"
)

type cliOptions struct {
	configPath  string
	dataPath    string
	keyColumn   string
	valueColumn string
	url         string
	headless    bool
	threshold   float64
	reportPath  string
	historyPath string
	keepOpen    bool
	logLevel    string

	// set records which flags were given explicitly.
	set map[string]bool
}

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runCommand(args)
	case "init":
		err = initCommand(args)
	case "history":
		err = historyCommand(args)
	default:
		err = fmt.Errorf("unknown command %q (want run, init or history)", cmd)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fillbot: %v", err)
	}
}

func parseFlags(args []string) (cliOptions, error) {
	opts := cliOptions{set: map[string]bool{}}
	fs := flag.NewFlagSet("fillbot", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to fillbot.yaml (default: ./fillbot.yaml)")
	fs.StringVar(&opts.dataPath, "data", "", "Key/value data file (JSON, YAML, CSV, TSV or key: value lines)")
	fs.StringVar(&opts.keyColumn, "key-column", "", "CSV/TSV column holding keys: header name or #n")
	fs.StringVar(&opts.valueColumn, "value-column", "", "CSV/TSV column holding values: header name or #n")
	fs.StringVar(&opts.url, "url", "", "Form URL to open (prompted when omitted)")
	fs.BoolVar(&opts.headless, "headless", false, "Run Chrome without a window")
	fs.Float64Var(&opts.threshold, "threshold", 0, "Minimum similarity for a field to be filled, in (0,1]")
	fs.StringVar(&opts.reportPath, "report", "", "Write the run report as JSON to this file")
	fs.StringVar(&opts.historyPath, "history", "", "SQLite run history database")
	fs.BoolVar(&opts.keepOpen, "keep-open", true, "Keep the browser open until you confirm")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [run] [options]\n       %s init [options]\n       %s history [options]\n\n",
			filepath.Base(os.Args[0]), filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.dataPath = strings.TrimSpace(opts.dataPath)
	opts.keyColumn = strings.TrimSpace(opts.keyColumn)
	opts.valueColumn = strings.TrimSpace(opts.valueColumn)
	opts.url = strings.TrimSpace(opts.url)
	opts.reportPath = strings.TrimSpace(opts.reportPath)
	opts.historyPath = strings.TrimSpace(opts.historyPath)
	opts.logLevel = strings.TrimSpace(opts.logLevel)

	if opts.set["threshold"] && (opts.threshold <= 0 || opts.threshold > 1) {
		fs.Usage()
		return opts, fmt.Errorf("--threshold must be within (0,1], got %v", opts.threshold)
	}
	if fs.NArg() > 0 && opts.url == "" {
		opts.url = strings.TrimSpace(fs.Arg(0))
	}
	return opts, nil
}

// applyOverrides lets explicit flags win over the config file.
func applyOverrides(cfg *fillbot.Config, opts cliOptions) {
	if opts.dataPath != "" {
		cfg.DataPath = opts.dataPath
	}
	if opts.keyColumn != "" {
		cfg.Data.KeyColumn = opts.keyColumn
	}
	if opts.valueColumn != "" {
		cfg.Data.ValueColumn = opts.valueColumn
	}
	if opts.set["headless"] {
		cfg.Browser.Headless = opts.headless
	}
	if opts.set["threshold"] {
		cfg.Matching.Threshold = float32(opts.threshold)
	}
	if opts.set["history"] {
		cfg.History.Path = opts.historyPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
}

func runCommand(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := fillbot.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, opts)

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.NewService(ctx, app.Options{Config: cfg, ReportPath: opts.reportPath}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	url := opts.url
	if url == "" {
		if url, err = promptURL(); err != nil {
			return err
		}
	}

	report, err := svc.Run(ctx, url)
	if err != nil {
		return err
	}
	if err := report.Print(os.Stdout); err != nil {
		return fmt.Errorf("print report: %w", err)
	}

	if opts.keepOpen && !cfg.Browser.Headless && ctx.Err() == nil {
		waitForReview()
	}
	return nil
}

func promptURL() (string, error) {
	var url string
	prompt := &survey.Input{
		Message: "Form URL:",
		Help:    "The page holding the form to fill, e.g. a Google Forms link.",
	}
	if err := survey.AskOne(prompt, &url, survey.WithValidator(survey.Required)); err != nil {
		return "", fmt.Errorf("prompt url: %w", err)
	}
	return strings.TrimSpace(url), nil
}

// waitForReview blocks until the user is done with the filled form.
func waitForReview() {
	for {
		done := false
		prompt := &survey.Confirm{
			Message: "Close the browser? Submit the form first if it looks right.",
			Default: false,
		}
		err := survey.AskOne(prompt, &done)
		if err != nil || done {
			if err != nil && !errors.Is(err, terminal.InterruptErr) {
				fmt.Fprintf(os.Stderr, "fillbot: %v\n", err)
			}
			return
		}
	}
}

func initCommand(args []string) error {
	fs := flag.NewFlagSet("fillbot init", flag.ContinueOnError)
	configPath := fs.String("config", "fillbot.yaml", "Config file to create")
	dataPath := fs.String("data", "data.yaml", "Sample data file to create; the extension picks the format")
	if err := fs.Parse(args); err != nil {
		return err
	}
	created, err := app.Scaffold(*configPath, *dataPath)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Println("nothing to do: files already exist")
		return nil
	}
	for _, path := range created {
		fmt.Printf("created %s\n", path)
	}
	return nil
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("fillbot history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to fillbot.yaml (default: ./fillbot.yaml)")
	historyPath := fs.String("history", "", "SQLite run history database (overrides config)")
	limit := fs.Int("limit", 20, "Number of runs to list")
	runID := fs.String("run", "", "Show the outcomes of a single run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := fillbot.LoadConfig(strings.TrimSpace(*configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	path := cfg.History.Path
	if p := strings.TrimSpace(*historyPath); p != "" {
		path = p
	}
	if path == "" {
		return errors.New("run history is disabled (history.path is empty)")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no run history at %s: %w", path, err)
	}

	store, err := history.Open(path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if id := strings.TrimSpace(*runID); id != "" {
		run, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", run.RunID, run.StartedAt.Local().Format(time.DateTime), run.URL)
		fmt.Fprintln(tw, "#\tFIELD\tKIND\tSTATUS\tKEY\tSCORE\tREASON")
		for _, o := range run.Outcomes {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
				o.Position+1, o.Label, o.Kind, o.Status, dash(o.MatchedKey), o.Confidence, dash(o.Reason))
		}
		return tw.Flush()
	}

	runs, err := store.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}
	fmt.Fprintln(tw, "RUN\tSTARTED\tFILLED\tSKIPPED\tFAILED\tURL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Filled, r.Skipped, r.Failed, r.URL)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newLogger(cfg fillbot.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// Logs go to stderr so the report on stdout stays clean.
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
