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

const optionPickTimeout = 2 * time.Second

// ListFields scans the current page for fillable controls in document order.
func (s *Session) ListFields(ctx context.Context) ([]fillbot.FieldMeta, error) {
	var fields []fillbot.FieldMeta
	if err := s.call(ctx, &fields, "scan"); err != nil {
		return nil, fmt.Errorf("scan form fields: %w", err)
	}
	s.logger.Debug("scanned page", zap.Int("fields", len(fields)))
	return fields, nil
}

// SetText types value into the element, falling back to a script setter when
// typing does not stick (date pickers, masked inputs, contenteditable).
func (s *Session) SetText(ctx context.Context, ref, value string) error {
	sel := refSelector(ref)
	typeErr := s.run(ctx, 0,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
	if typeErr == nil {
		var got string
		if err := s.call(ctx, &got, "value", ref); err == nil && got == value {
			return nil
		}
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	var ok bool
	if err := s.call(ctx, &ok, "setValue", ref, value); err != nil {
		return fillbot.NewFieldError("set text", ref, errors.Join(typeErr, err))
	}
	if !ok {
		return fillbot.NewFieldError("set text", ref, errors.New("value was not accepted"))
	}
	s.logger.Debug("value set by script", zap.String("ref", ref), zap.NamedError("type_error", typeErr))
	return nil
}

// SelectOption picks the option labelled optionLabel in a native select or
// an ARIA listbox.
func (s *Session) SelectOption(ctx context.Context, ref, optionLabel string) error {
	sel := refSelector(ref)
	if err := s.run(ctx, 0, chromedp.ScrollIntoView(sel, chromedp.ByQuery)); err != nil {
		return fillbot.NewFieldError("select", ref, err)
	}
	var state string
	if err := s.call(ctx, &state, "select", ref, optionLabel); err != nil {
		return fillbot.NewFieldError("select", ref, err)
	}
	switch state {
	case "ok":
		return nil
	case "missing":
		return fillbot.NewFieldError("select", ref, fmt.Errorf("%w: %q", fillbot.ErrNoMatchingOption, optionLabel))
	}

	if err := s.run(ctx, 0, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fillbot.NewFieldError("open listbox", ref, err)
	}
	var picked bool
	if err := s.call(ctx, &picked, "pickOption", ref, optionLabel, optionPickTimeout.Milliseconds()); err != nil {
		return fillbot.NewFieldError("pick option", ref, err)
	}
	if !picked {
		return fillbot.NewFieldError("pick option", ref, fmt.Errorf("option %q did not appear", optionLabel))
	}
	return nil
}

// Check sets a radio or checkbox option to on. Options already in the wanted
// state are left alone.
func (s *Session) Check(ctx context.Context, ref string, on bool) error {
	var current bool
	if err := s.call(ctx, &current, "checked", ref); err != nil {
		return fillbot.NewFieldError("check", ref, err)
	}
	if current == on {
		return nil
	}
	sel := refSelector(ref)
	clickErr := s.run(ctx, 0,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	)
	if clickErr == nil {
		if err := s.call(ctx, &current, "checked", ref); err == nil && current == on {
			return nil
		}
	}
	// Styled controls often hide the input behind its label.
	if err := s.call(ctx, &current, "toggle", ref); err != nil {
		return fillbot.NewFieldError("check", ref, errors.Join(clickErr, err))
	}
	if current != on {
		return fillbot.NewFieldError("check", ref, errors.New("state did not change"))
	}
	return nil
}

// WaitVisible reports whether the element became visible within timeout.
func (s *Session) WaitVisible(ctx context.Context, ref string, timeout time.Duration) bool {
	err := s.run(ctx, timeout, chromedp.WaitVisible(refSelector(ref), chromedp.ByQuery))
	if err != nil {
		s.logger.Debug("element not visible", zap.String("ref", ref), zap.Duration("timeout", timeout), zap.Error(err))
		return false
	}
	return true
}
