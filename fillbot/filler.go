package fillbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// fillStrategy enters value into field. The returned note is attached to a
// successful outcome.
type fillStrategy func(ctx context.Context, d Driver, field FormField, value string) (note string, err error)

// strategies maps every fillable kind to its interaction. KindUnknown has no
// entry and is skipped before matching.
var strategies = map[Kind]fillStrategy{
	KindText:     fillText,
	KindTextarea: fillText,
	KindDate:     fillDate,
	KindRadio:    fillRadio,
	KindCheckbox: fillCheckbox,
	KindDropdown: fillDropdown,
}

// FormFiller drives one form: classify, match, interact, record.
type FormFiller struct {
	driver      Driver
	matcher     Matcher
	cfg         FillConfig
	logger      *zap.Logger
	matchingErr error
}

// NewFormFiller wires the filler. The driver is used exclusively for the
// duration of a run.
func NewFormFiller(driver Driver, matcher Matcher, cfg FillConfig, logger *zap.Logger) *FormFiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &FormFiller{driver: driver, matcher: matcher, cfg: cfg, logger: logger}
}

// WithMatchingUnavailable starts every run with matching already down: each
// fillable field is skipped with err as the reason and the matcher is never
// called. A nil err leaves matching enabled.
func (f *FormFiller) WithMatchingUnavailable(err error) *FormFiller {
	f.matchingErr = err
	return f
}

// Fill discovers the page's fields and fills them in document order. Only a
// failure to enumerate fields is returned as an error.
func (f *FormFiller) Fill(ctx context.Context, data *UserData) (*Report, error) {
	metas, err := f.driver.ListFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	f.logger.Info("discovered form fields", zap.Int("count", len(metas)))
	return f.FillFields(ctx, metas, data), nil
}

// FillFields processes metas sequentially. Every field yields exactly one
// outcome; per-field errors never abort the run.
func (f *FormFiller) FillFields(ctx context.Context, metas []FieldMeta, data *UserData) *Report {
	report := NewReport("")
	run := &fillRun{FormFiller: f, data: data, matchingErr: f.matchingErr}
	for _, meta := range metas {
		field := NewFormField(meta)
		start := time.Now()
		outcome := run.fillOne(ctx, field)
		outcome.Duration = time.Since(start)
		f.logOutcome(outcome)
		report.Add(outcome)
	}
	report.Finish()
	return report
}

// fillRun carries the state shared by the fields of one run.
type fillRun struct {
	*FormFiller
	data        *UserData
	matchingErr error
}

func (r *fillRun) fillOne(ctx context.Context, field FormField) FillOutcome {
	if ctx.Err() != nil {
		return skipped(field, "run cancelled")
	}
	strategy, ok := strategies[field.Kind]
	if !ok {
		return skipped(field, "unsupported field")
	}
	if r.matchingErr != nil {
		return skipped(field, r.matchingErr.Error())
	}

	match, err := MatchField(ctx, r.matcher, field, r.data)
	if err != nil {
		if ctx.Err() != nil {
			return skipped(field, "run cancelled")
		}
		if errors.Is(err, ErrMatchingUnavailable) {
			r.matchingErr = err
			r.logger.Warn("matching unavailable, remaining fields will be skipped", zap.Error(err))
			return skipped(field, err.Error())
		}
		return skipped(field, fmt.Sprintf("match error: %v", err))
	}
	if !match.Matched {
		out := skipped(field, fmt.Sprintf("no match (best %.2f)", match.Confidence))
		out.Confidence = match.Confidence
		return out
	}

	out := FillOutcome{
		Field:      field,
		MatchedKey: match.MatchedKey,
		Value:      match.Value,
		Confidence: match.Confidence,
	}
	if !r.driver.WaitVisible(ctx, field.Ref, r.cfg.WaitTimeout) {
		out.Status = StatusFailed
		out.Reason = fmt.Sprintf("%v after %s", ErrElementNotFound, r.cfg.WaitTimeout)
		return out
	}

	var note string
	attempts, err := r.cfg.Retry.Do(ctx, r.logger, func(int) error {
		var ferr error
		note, ferr = strategy(ctx, r.driver, field, match.Value)
		return ferr
	})
	out.Attempts = attempts
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return out
	}
	out.Status = StatusFilled
	out.Reason = note
	_ = sleepContext(ctx, r.cfg.SettleDelay)
	return out
}

func (f *FormFiller) logOutcome(o FillOutcome) {
	fields := []zap.Field{
		zap.String("label", o.Field.Label),
		zap.String("kind", string(o.Field.Kind)),
		zap.String("status", string(o.Status)),
	}
	if o.MatchedKey != "" {
		fields = append(fields, zap.String("key", o.MatchedKey), zap.Float32("confidence", o.Confidence))
	}
	if o.Reason != "" {
		fields = append(fields, zap.String("reason", o.Reason))
	}
	switch o.Status {
	case StatusFailed:
		f.logger.Warn("field failed", fields...)
	default:
		f.logger.Info("field processed", fields...)
	}
}

func skipped(field FormField, reason string) FillOutcome {
	return FillOutcome{Field: field, Status: StatusSkipped, Reason: reason}
}

func fillText(ctx context.Context, d Driver, field FormField, value string) (string, error) {
	return "", d.SetText(ctx, field.Ref, value)
}

func fillDate(ctx context.Context, d Driver, field FormField, value string) (string, error) {
	formatted, err := FormatDateValue(value)
	if err != nil {
		return "", err
	}
	return "", d.SetText(ctx, field.Ref, formatted)
}

func fillRadio(ctx context.Context, d Driver, field FormField, value string) (string, error) {
	opt, ok := ResolveOption(field.Options, value)
	if !ok {
		return "", fmt.Errorf("%w: %q not in %s", ErrNoMatchingOption, value, quoteList(field.OptionLabels()))
	}
	return "", d.Check(ctx, opt.Ref, true)
}

func fillCheckbox(ctx context.Context, d Driver, field FormField, value string) (string, error) {
	var picked []Option
	var missing []string
	for _, part := range SplitMultiValue(value) {
		if opt, ok := ResolveOption(field.Options, part); ok {
			picked = append(picked, opt)
		} else {
			missing = append(missing, part)
		}
	}
	if len(picked) == 0 {
		return "", fmt.Errorf("%w: %q not in %s", ErrNoMatchingOption, value, quoteList(field.OptionLabels()))
	}
	for _, opt := range picked {
		if err := d.Check(ctx, opt.Ref, true); err != nil {
			return "", err
		}
	}
	if len(missing) > 0 {
		return "unmatched options: " + strings.Join(missing, ", "), nil
	}
	return "", nil
}

func fillDropdown(ctx context.Context, d Driver, field FormField, value string) (string, error) {
	opt, ok := ResolveOption(field.Options, value)
	if !ok {
		return "", fmt.Errorf("%w: %q not in %s", ErrNoMatchingOption, value, quoteList(field.OptionLabels()))
	}
	return "", d.SelectOption(ctx, field.Ref, opt.Label)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
