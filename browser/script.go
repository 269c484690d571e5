package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

//go:embed assets/fillbot.js
var helperScript string

const refAttr = "data-fillbot-ref"

// refSelector returns the CSS selector of an element tagged by the helper.
func refSelector(ref string) string {
	return fmt.Sprintf("[%s=%q]", refAttr, ref)
}

// callExpr builds an expression that installs the helper if needed and calls
// fn with JSON encoded args.
func callExpr(fn string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode argument %d of %s: %w", i, fn, err)
		}
		encoded[i] = string(b)
	}
	var sb strings.Builder
	sb.WriteString("(function(){\n")
	sb.WriteString(helperScript)
	sb.WriteString("\nreturn window.__fillbot.")
	sb.WriteString(fn)
	sb.WriteString("(")
	sb.WriteString(strings.Join(encoded, ","))
	sb.WriteString(");\n})()")
	return sb.String(), nil
}

// call evaluates a helper function and decodes its result into res.
func (s *Session) call(ctx context.Context, res any, fn string, args ...any) error {
	expr, err := callExpr(fn, args...)
	if err != nil {
		return err
	}
	return s.run(ctx, 0, chromedp.Evaluate(expr, res, awaitPromise))
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
