package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/builderkit/modloader/activation"
)

// Runner executes bundles in the page the client is attached to, with
// Runtime.evaluate.
type Runner struct {
	client cdp.Executor
}

// NewRunner returns a runner evaluating scripts through exec.
func NewRunner(exec cdp.Executor) *Runner {
	return &Runner{client: exec}
}

// Run evaluates src in the page's global scope.
func (r *Runner) Run(ctx context.Context, name string, src []byte) error {
	expr := string(src) + "\n//# sourceURL=" + name
	_, exc, err := cdpruntime.Evaluate(expr).
		WithSilent(true).
		Do(cdp.WithExecutor(ctx, r.client))
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", name, err)
	}
	if exc != nil {
		return fmt.Errorf("evaluating %s: %s", name, exceptionText(exc))
	}
	return nil
}

// Initialize calls window[fn](cfg) in the page if fn is a function.
func (r *Runner) Initialize(ctx context.Context, fn string, cfg activation.Config) (bool, error) {
	fnJSON, err := json.Marshal(fn)
	if err != nil {
		return false, fmt.Errorf("encoding initializer name: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("encoding %s config: %w", fn, err)
	}

	expr := fmt.Sprintf(`(function (name, cfg) {
	var init = window[name];
	if (typeof init !== "function") { return false; }
	init(cfg);
	return true;
})(%s, %s)`, fnJSON, cfgJSON)

	res, exc, err := cdpruntime.Evaluate(expr).
		WithReturnByValue(true).
		Do(cdp.WithExecutor(ctx, r.client))
	if err != nil {
		return false, fmt.Errorf("calling %s: %w", fn, err)
	}
	if exc != nil {
		return true, fmt.Errorf("calling %s: %s", fn, exceptionText(exc))
	}

	var called bool
	if res != nil && len(res.Value) > 0 {
		if err := json.Unmarshal(res.Value, &called); err != nil {
			return false, fmt.Errorf("decoding %s result: %w", fn, err)
		}
	}
	return called, nil
}

func exceptionText(exc *cdpruntime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		return exc.Exception.Description
	}
	return exc.Text
}
