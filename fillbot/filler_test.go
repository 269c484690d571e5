package fillbot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func textMeta(ref, label string) FieldMeta {
	return FieldMeta{Ref: ref, Label: label, Tag: "input", Type: "text"}
}

func matched(key, value string, conf float32) MatchResult {
	return MatchResult{Matched: true, MatchedKey: key, Value: value, Confidence: conf}
}

func TestFormFiller_FillsMatchedTextAndSkipsUnmatched(t *testing.T) {
	driver := newFakeDriver(
		textMeta("f1", "What is your full name?"),
		textMeta("f2", "Favourite colour?"),
	)
	matcher := NewFieldMatcher(sampleEmbedder(), 0.5, nil)
	filler := NewFormFiller(driver, matcher, fastFillConfig(), nil)

	report, err := filler.Fill(context.Background(), sampleData())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)

	name := report.Outcomes[0]
	assert.Equal(t, StatusFilled, name.Status)
	assert.Equal(t, "full name", name.MatchedKey)
	assert.Equal(t, 1, name.Attempts)
	assert.Equal(t, []driverCall{{Op: "set", Ref: "f1", Value: "John Doe"}}, driver.callsFor("f1"))

	colour := report.Outcomes[1]
	assert.Equal(t, StatusSkipped, colour.Status)
	assert.Contains(t, colour.Reason, "no match")
	assert.Empty(t, driver.callsFor("f2"), "unmatched fields must not be touched")

	assert.Equal(t, 1, report.Filled)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.RunID)
}

func TestFormFiller_RetriesOnceThenFailsAndContinues(t *testing.T) {
	driver := newFakeDriver(textMeta("f1", "Name"), textMeta("f2", "Email"))
	driver.failures["f1"] = 2
	matcher := &stubMatcher{results: map[string]MatchResult{
		"Name":  matched("full name", "John Doe", 0.9),
		"Email": matched("email", "john@example.com", 0.8),
	}}
	filler := NewFormFiller(driver, matcher, fastFillConfig(), nil)

	report, err := filler.Fill(context.Background(), sampleData())
	require.NoError(t, err)

	first := report.Outcomes[0]
	assert.Equal(t, StatusFailed, first.Status)
	assert.Equal(t, 2, first.Attempts)
	assert.Contains(t, first.Reason, "element detached")
	assert.Len(t, driver.callsFor("f1"), 2)

	assert.Equal(t, StatusFilled, report.Outcomes[1].Status)
	assert.Equal(t, 1, report.Filled)
	assert.Equal(t, 1, report.Failed)
}

func TestFormFiller_RecoversOnRetry(t *testing.T) {
	driver := newFakeDriver(textMeta("f1", "Name"))
	driver.failures["f1"] = 1
	matcher := &stubMatcher{results: map[string]MatchResult{"Name": matched("full name", "John Doe", 0.9)}}

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, report.Outcomes[0].Status)
	assert.Equal(t, 2, report.Outcomes[0].Attempts)
}

func TestFormFiller_NotVisibleFailsWithoutInteraction(t *testing.T) {
	driver := newFakeDriver(textMeta("f1", "Name"))
	driver.hidden["f1"] = true
	matcher := &stubMatcher{results: map[string]MatchResult{"Name": matched("full name", "John Doe", 0.9)}}

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, ErrElementNotFound.Error())
	assert.Empty(t, driver.callsFor("f1"))
}

func TestFormFiller_UnknownFieldsSkippedWithoutMatching(t *testing.T) {
	driver := newFakeDriver(
		FieldMeta{Ref: "f1", Label: "Upload CV", Tag: "input", Type: "file"},
		FieldMeta{Ref: "f2", Label: "Pick one", Tag: "input", Type: "radio"},
	)
	matcher := &stubMatcher{}

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.NoError(t, err)
	for _, o := range report.Outcomes {
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Equal(t, KindUnknown, o.Field.Kind)
	}
	assert.Zero(t, matcher.calls)
}

func TestFormFiller_OptionFields(t *testing.T) {
	driver := newFakeDriver(
		FieldMeta{
			Ref: "f1", Label: "Are you over 18?", Tag: "select",
			Options: []Option{{Label: "Yes", Value: "y", Ref: "f1-o0"}, {Label: "No", Value: "n", Ref: "f1-o1"}},
		},
		FieldMeta{
			Ref: "f2", Label: "Preferred contact", Tag: "input", Type: "radio",
			Options: []Option{{Label: "Email", Ref: "f2-o0"}, {Label: "Phone", Ref: "f2-o1"}},
		},
		FieldMeta{
			Ref: "f3", Label: "Languages", Tag: "input", Type: "checkbox",
			Options: []Option{{Label: "English", Ref: "f3-o0"}, {Label: "French", Ref: "f3-o1"}, {Label: "German", Ref: "f3-o2"}},
		},
		FieldMeta{
			Ref: "f4", Label: "Shirt size", Tag: "select",
			Options: []Option{{Label: "Small", Ref: "f4-o0"}, {Label: "Large", Ref: "f4-o1"}},
		},
	)
	matcher := &stubMatcher{results: map[string]MatchResult{
		"Are you over 18?":  matched("adult", "yes", 0.7),
		"Preferred contact": matched("contact", "phone call", 0.6),
		"Languages":         matched("languages", "english; german, klingon", 0.8),
		"Shirt size":        matched("size", "medium", 0.9),
	}}

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.NoError(t, err)

	assert.Equal(t, StatusFilled, report.Outcomes[0].Status)
	assert.Equal(t, []driverCall{{Op: "select", Ref: "f1", Value: "Yes"}}, driver.callsFor("f1"))

	assert.Equal(t, StatusFilled, report.Outcomes[1].Status)
	assert.Equal(t, []driverCall{{Op: "check", Ref: "f2-o1", Value: "on"}}, driver.callsFor("f2-o1"))

	assert.Equal(t, StatusFilled, report.Outcomes[2].Status)
	assert.Len(t, driver.callsFor("f3-o0"), 1)
	assert.Empty(t, driver.callsFor("f3-o1"))
	assert.Len(t, driver.callsFor("f3-o2"), 1)
	assert.Contains(t, report.Outcomes[2].Reason, "klingon")

	size := report.Outcomes[3]
	assert.Equal(t, StatusFailed, size.Status)
	assert.Equal(t, 1, size.Attempts, "missing options are not retried")
	assert.Contains(t, size.Reason, ErrNoMatchingOption.Error())
	assert.Empty(t, driver.callsFor("f4"))
}

func TestFormFiller_DateField(t *testing.T) {
	driver := newFakeDriver(
		FieldMeta{Ref: "f1", Label: "Date of birth", Tag: "input", Type: "date"},
		FieldMeta{Ref: "f2", Label: "Start date", Tag: "input", Type: "date"},
	)
	matcher := &stubMatcher{results: map[string]MatchResult{
		"Date of birth": matched("dob", "03/14/1990", 0.9),
		"Start date":    matched("start", "whenever", 0.9),
	}}

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, report.Outcomes[0].Status)
	assert.Equal(t, []driverCall{{Op: "set", Ref: "f1", Value: "1990-03-14"}}, driver.callsFor("f1"))

	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.Equal(t, 1, report.Outcomes[1].Attempts)
	assert.Empty(t, driver.callsFor("f2"))
}

func TestFormFiller_MatchingUnavailableLoggedOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	driver := newFakeDriver(textMeta("f1", "Name"), textMeta("f2", "Email"), textMeta("f3", "Phone"))
	matcher := &stubMatcher{err: errors.Join(ErrMatchingUnavailable, errors.New("boom"))}

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), zap.New(core)).Fill(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 1, matcher.calls, "matching is not retried once unavailable")
	assert.Equal(t, 1, logs.FilterMessageSnippet("matching unavailable").Len())
}

func TestFormFiller_StartsWithMatchingUnavailable(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	driver := newFakeDriver(textMeta("f1", "Name"), textMeta("f2", "Email"))
	matcher := &stubMatcher{}
	down := fmt.Errorf("%w: embed candidates: endpoint down", ErrMatchingUnavailable)

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), zap.New(core)).
		WithMatchingUnavailable(down).
		Fill(context.Background(), sampleData())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Equal(t, down.Error(), o.Reason)
	}
	assert.Zero(t, matcher.calls)
	assert.Empty(t, driver.calls)
	assert.Zero(t, logs.Len(), "the caller already reported the failure")
}

func TestFormFiller_CancelDuringMatchIsNotAMatchingFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	driver := newFakeDriver(textMeta("f1", "Name"), textMeta("f2", "Email"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	matcher := matcherFunc(func(ctx context.Context, _ string, _ *UserData) (MatchResult, error) {
		cancel()
		return MatchResult{}, fmt.Errorf("%w: %w", ErrMatchingUnavailable, ctx.Err())
	})

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), zap.New(core)).Fill(ctx, sampleData())
	require.NoError(t, err)
	for _, o := range report.Outcomes {
		assert.Equal(t, "run cancelled", o.Reason)
	}
	assert.Zero(t, logs.FilterMessageSnippet("matching unavailable").Len())
}

func TestFormFiller_CancelledRunSkipsRemaining(t *testing.T) {
	driver := newFakeDriver(textMeta("f1", "Name"), textMeta("f2", "Email"))
	matcher := &stubMatcher{results: map[string]MatchResult{"Name": matched("full name", "John Doe", 0.9)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(ctx, sampleData())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Equal(t, "run cancelled", o.Reason)
	}
}

func TestFormFiller_ListFieldsError(t *testing.T) {
	driver := newFakeDriver()
	driver.listErr = errors.New("page crashed")

	report, err := NewFormFiller(driver, &stubMatcher{}, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.Error(t, err)
	assert.Nil(t, report)
}

func TestFormFiller_RequiredSkippedListed(t *testing.T) {
	required := textMeta("f1", "Favourite colour? *")
	required.Required = true
	driver := newFakeDriver(required, textMeta("f2", "What is your full name?"))
	matcher := NewFieldMatcher(sampleEmbedder(), 0.5, nil)

	report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
	require.NoError(t, err)
	req := report.RequiredSkipped()
	require.Len(t, req, 1)
	assert.Equal(t, "Favourite colour?", req[0].Field.Label)
}

func TestFormFiller_StrategyForEveryFillableKind(t *testing.T) {
	for _, k := range Kinds() {
		_, ok := strategies[k]
		assert.Equal(t, k != KindUnknown, ok, "kind %s", k)
	}
}

func TestProperty_EveryFieldGetsOneOutcome(t *testing.T) {
	tags := []string{"input", "select", "textarea", "div", "button"}
	types := []string{"text", "email", "date", "radio", "checkbox", "file", "submit", ""}
	labels := []string{"Name", "Email", "Phone", "Colour", ""}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		driver := newFakeDriver()
		for i := 0; i < n; i++ {
			ref := "f" + string(rune('a'+i))
			meta := FieldMeta{
				Ref:   ref,
				Label: rapid.SampledFrom(labels).Draw(rt, "label"),
				Tag:   rapid.SampledFrom(tags).Draw(rt, "tag"),
				Type:  rapid.SampledFrom(types).Draw(rt, "type"),
			}
			if rapid.Bool().Draw(rt, "options") {
				meta.Options = []Option{{Label: "Yes", Ref: ref + "-o0"}, {Label: "No", Ref: ref + "-o1"}}
			}
			driver.failures[ref] = rapid.IntRange(0, 3).Draw(rt, "failures")
			driver.fields = append(driver.fields, meta)
		}
		matcher := &stubMatcher{results: map[string]MatchResult{
			"Name":  matched("full name", "John Doe", 0.9),
			"Email": matched("email", "yes", 0.8),
			"Phone": matched("phone", "01/02/2020", 0.7),
		}}

		report, err := NewFormFiller(driver, matcher, fastFillConfig(), nil).Fill(context.Background(), sampleData())
		require.NoError(rt, err)
		require.Len(rt, report.Outcomes, n)
		assert.Equal(rt, n, report.Filled+report.Skipped+report.Failed)
		for i, o := range report.Outcomes {
			assert.Equal(rt, driver.fields[i].Ref, o.Field.Ref, "outcomes keep document order")
			assert.LessOrEqual(rt, o.Attempts, 2)
		}
	})
}
