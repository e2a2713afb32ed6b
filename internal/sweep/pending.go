package sweep

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/logging"
)

const positionalPrefix = "row "

// isPositional reports whether a label was derived from position rather than row content
func isPositional(label string) bool {
	return strings.HasPrefix(label, positionalPrefix)
}

// recordKey pulls the record id out of a handler such as dialogUserInfo('4711')
var recordKey = regexp.MustCompile(`\(\s*['"]?([^'")]+)`)

// label names the row holding a pending marker by its profile link text, qualified by the
// record the link opens so namesakes stay apart. Rows without a readable link fall back to a
// positional label, which is never used to match or skip rows.
func (e *Engine) label(ctx context.Context, page int, ref browser.Ref) string {
	trigger, found, err := e.view.Related(ctx, ref, e.sel.Row, e.sel.DetailTrigger)
	if err == nil && found {
		if text, err := e.view.Text(ctx, trigger); err == nil && strings.TrimSpace(text) != "" {
			label := strings.TrimSpace(text)
			if key := e.rowKey(ctx, trigger); key != "" {
				label += " #" + key
			}
			return label
		}
	}
	return fmt.Sprintf("%s%d on page %d", positionalPrefix, ref.Index+1, page)
}

// rowKey returns the record id carried by the detail trigger, or the raw attribute value
// when it is not a call
func (e *Engine) rowKey(ctx context.Context, trigger browser.Ref) string {
	if e.sel.DetailKey == "" {
		return ""
	}
	value, err := e.view.Attr(ctx, trigger, e.sel.DetailKey)
	if err != nil {
		return ""
	}
	if m := recordKey.FindStringSubmatch(value); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(value)
}

// nextPending returns the first pending marker on the page whose row is not quarantined
func (e *Engine) nextPending(ctx context.Context, r *run, page int) (browser.Ref, string, bool, error) {
	refs, err := e.view.FindAll(ctx, e.sel.Pending)
	if err != nil {
		return browser.Ref{}, "", false, err
	}

	for _, ref := range refs {
		label := e.label(ctx, page, ref)
		if r.quarantined[label] {
			continue
		}
		logging.Debug("  %d pending marker(s) on page %d, next: %s", len(refs), page, label)
		return ref, label, true, nil
	}
	return browser.Ref{}, "", false, nil
}

// resolvePending re-queries the pending marker for the row named label. A positional
// label resolves to the first eligible marker.
func (e *Engine) resolvePending(ctx context.Context, r *run, page int, label string) (browser.Ref, bool, error) {
	refs, err := e.view.FindAll(ctx, e.sel.Pending)
	if err != nil {
		return browser.Ref{}, false, err
	}

	for _, ref := range refs {
		current := e.label(ctx, page, ref)
		if r.quarantined[current] {
			continue
		}
		if isPositional(label) || current == label {
			return ref, true, nil
		}
	}
	return browser.Ref{}, false, nil
}

// changePage moves to page n using the numbered page control. When allowNext is set and the
// numbered control is missing or disabled, the "next" control is tried instead.
func (e *Engine) changePage(ctx context.Context, n int, allowNext bool) bool {
	if e.clickEnabled(ctx, fmt.Sprintf(e.sel.PageButton, n)) {
		logging.Debug("Moved to page %d", n)
		return e.settle(ctx)
	}
	if allowNext && e.sel.NextButton != "" && e.clickEnabled(ctx, e.sel.NextButton) {
		logging.Debug("Moved to page %d via next control", n)
		return e.settle(ctx)
	}
	return false
}

func (e *Engine) clickEnabled(ctx context.Context, selector string) bool {
	ref, found, err := e.view.FindOne(ctx, selector)
	if err != nil || !found {
		return false
	}
	if enabled, err := e.view.Enabled(ctx, ref); err != nil || !enabled {
		return false
	}
	if err := e.view.Invoke(ctx, ref); err != nil {
		logging.Debug("Page control %s: %v", selector, err)
		return false
	}
	return true
}

func (e *Engine) settle(ctx context.Context) bool {
	return browser.Pause(ctx, e.timeouts.PageSettle) == nil
}
