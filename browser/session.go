// Package browser drives a Chrome session through chromedp and exposes it as
// a fillbot.Driver.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"yashubustudio/fillbot/fillbot"
)

const defaultActionTimeout = 15 * time.Second

var _ fillbot.Driver = (*Session)(nil)

// Session owns one browser tab. It is not safe for concurrent use.
type Session struct {
	cfg           fillbot.BrowserConfig
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	allocCancel   context.CancelFunc
	actionTimeout time.Duration
}

// Launch starts the browser. The session outlives ctx; call Close to end it.
func Launch(ctx context.Context, cfg fillbot.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], allocatorOptions(cfg)...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &Session{
		cfg:           cfg,
		logger:        logger,
		ctx:           tabCtx,
		cancel:        tabCancel,
		allocCancel:   allocCancel,
		actionTimeout: defaultActionTimeout,
	}
	// The first Run allocates the browser; it must not carry a deadline.
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", fillbot.ErrBrowserLaunch, err)
	}
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", fillbot.ErrBrowserLaunch, err)
	}
	logger.Info("browser launched", zap.Bool("headless", cfg.Headless))
	return s, nil
}

func allocatorOptions(cfg fillbot.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("headless", cfg.Headless),
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// Navigate opens url and waits for the page to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("navigating", zap.String("url", url))
	err := s.run(ctx, 0,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	// Client-rendered forms keep building after the load event.
	if err := sleep(ctx, s.cfg.LoadDelay); err != nil {
		return err
	}
	return nil
}

// Close ends the tab and the browser process.
func (s *Session) Close() error {
	if s == nil || s.cancel == nil {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	s.cancel = nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Done is closed once the tab context ends.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// run executes actions on the tab bounded by ctx and a per-call timeout.
// timeout 0 uses the session default.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = s.actionTimeout
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
