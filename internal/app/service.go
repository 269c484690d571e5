package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"yashubustudio/fillbot/browser"
	"yashubustudio/fillbot/fillbot"
	"yashubustudio/fillbot/history"
)

// Browser is a driver that can also load pages.
type Browser interface {
	fillbot.Driver
	Navigate(ctx context.Context, url string) error
	Close() error
}

// Launcher starts a Browser.
type Launcher func(ctx context.Context, cfg fillbot.BrowserConfig, logger *zap.Logger) (Browser, error)

// ChromeLauncher launches Chrome through chromedp.
func ChromeLauncher(ctx context.Context, cfg fillbot.BrowserConfig, logger *zap.Logger) (Browser, error) {
	s, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options configures a Service. Launch and Embedder default to Chrome and
// the configured embedding backend.
type Options struct {
	Config     fillbot.Config
	ReportPath string
	Launch     Launcher
	Embedder   fillbot.Embedder
}

// Service owns everything a run needs: data, embedder, matcher, browser and
// history. Nothing is global.
type Service struct {
	cfg          fillbot.Config
	logger       *zap.Logger
	data         *fillbot.UserData
	embedder     fillbot.Embedder
	ownsEmbedder bool
	matcher      *fillbot.FieldMatcher
	matchingErr  error
	history      *history.Store
	launch       Launcher
	browser      Browser
	reportPath   string
}

// NewService loads the data set and prepares matching. Data, config and
// embedder construction errors are startup failures. An embedder that cannot
// embed the data keys only degrades runs: every field is skipped.
func NewService(ctx context.Context, opts Options, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	cfg.ApplyDefaults()

	data, err := fillbot.LoadUserDataWithOptions(cfg.DataPath, cfg.Data.ParseOptions())
	if err != nil {
		return nil, err
	}
	logger.Info("user data loaded", zap.String("path", cfg.DataPath), zap.Int("entries", data.Len()))

	svc := &Service{
		cfg:        cfg,
		logger:     logger,
		data:       data,
		embedder:   opts.Embedder,
		launch:     opts.Launch,
		reportPath: opts.ReportPath,
	}
	if svc.launch == nil {
		svc.launch = ChromeLauncher
	}
	if svc.embedder == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		e, err := fillbot.NewEmbedder(ctx, cfg.Embedder, logger.Named("embedder"))
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		svc.embedder = e
		svc.ownsEmbedder = true
	}

	svc.matcher = fillbot.NewFieldMatcher(svc.embedder, cfg.Matching.Threshold, logger.Named("matcher"))
	if err := svc.matcher.Prepare(ctx, data); err != nil {
		if !errors.Is(err, fillbot.ErrMatchingUnavailable) {
			_ = svc.Close()
			return nil, err
		}
		svc.matchingErr = err
		logger.Warn("matching unavailable, every field will be skipped", zap.Error(err))
	} else {
		logger.Info("matcher ready",
			zap.String("model", svc.embedder.ModelID()),
			zap.Float32("threshold", svc.matcher.Threshold()),
		)
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path, logger.Named("history"))
		if err != nil {
			logger.Warn("run history disabled", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			svc.history = store
		}
	}
	return svc, nil
}

// Data returns the loaded data set.
func (s *Service) Data() *fillbot.UserData {
	return s.data
}

// Run opens url, fills the form and records the result. The browser is
// launched on first use and stays open until Close so the user can review
// and submit.
func (s *Service) Run(ctx context.Context, url string) (*fillbot.Report, error) {
	if s.browser == nil {
		b, err := s.launch(ctx, s.cfg.Browser, s.logger.Named("browser"))
		if err != nil {
			return nil, err
		}
		s.browser = b
	}
	if err := s.browser.Navigate(ctx, url); err != nil {
		return nil, err
	}

	filler := fillbot.NewFormFiller(s.browser, s.matcher, s.cfg.Fill, s.logger.Named("filler")).
		WithMatchingUnavailable(s.matchingErr)
	report, err := filler.Fill(ctx, s.data)
	if err != nil {
		return nil, err
	}
	report.URL = url
	s.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("filled", report.Filled),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)

	// Recording is best effort; the form is already filled.
	if s.history != nil {
		if err := s.history.Save(ctx, report); err != nil {
			s.logger.Warn("save run history", zap.Error(err))
		}
	}
	if s.reportPath != "" {
		if err := report.WriteJSON(s.reportPath); err != nil {
			s.logger.Warn("write report", zap.String("path", s.reportPath), zap.Error(err))
		}
	}
	return report, nil
}

// Close tears down the browser, embedder and history store.
func (s *Service) Close() error {
	var errs []error
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
		s.browser = nil
	}
	if s.ownsEmbedder && s.embedder != nil {
		errs = append(errs, s.embedder.Close())
		s.embedder = nil
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
		s.history = nil
	}
	return errors.Join(errs...)
}
