package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/lance13c/roster/internal/logging"
)

// ErrStaleRef is returned when a Ref no longer resolves to an element
var ErrStaleRef = errors.New("element reference is stale")

// ErrClickIntercepted is returned when another element covers the click target
var ErrClickIntercepted = errors.New("click would be received by another element")

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// Ref addresses an element by its position among the current matches of a selector.
// It is resolved again on every use and carries no identity across page mutations.
type Ref struct {
	Selector string
	Index    int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s[%d]", r.Selector, r.Index)
}

// Options configures a browser session
type Options struct {
	Headless      bool
	ChromePath    string
	ActionTimeout time.Duration
	LoadTimeout   time.Duration
}

// Session is a single Chrome tab driven through chromedp
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	actionTimeout time.Duration
	loadTimeout   time.Duration

	dialogs chan string
}

// NewSession starts Chrome and opens one tab
func NewSession(opts Options) (*Session, error) {
	chromePath := opts.ChromePath
	if chromePath == "" {
		var err error
		chromePath, err = findChrome()
		if err != nil {
			return nil, err
		}
	}
	logging.Info("Using Chrome from: %s (headless=%v)", chromePath, opts.Headless)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(chromePath, opts.Headless)...)

	ctx, cancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			logging.Debug("[Chrome] "+format, v...)
		}),
	)

	// Start Chrome with the root context; a timeout here would tear the browser down later
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	s := &Session{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		ctx:           ctx,
		cancel:        cancel,
		actionTimeout: opts.ActionTimeout,
		loadTimeout:   opts.LoadTimeout,
		dialogs:       make(chan string, 1),
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = 5 * time.Second
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = 30 * time.Second
	}

	chromedp.ListenTarget(ctx, s.onEvent)

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
		return err
	}))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to install page script: %w", err)
	}

	return s, nil
}

// onEvent accepts native dialogs as soon as they open. A pending dialog freezes the page's
// script runtime, so waiting for a caller to drain it would stall every later query.
func (s *Session) onEvent(ev interface{}) {
	e, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	logging.Debug("Native %s dialog opened: %q", e.Type, e.Message)

	go func() {
		if err := chromedp.Run(s.ctx, page.HandleJavaScriptDialog(true)); err != nil {
			logging.Warn("Failed to accept dialog: %v", err)
			return
		}
		select {
		case s.dialogs <- e.Message:
		default:
		}
	}()
}

// scope derives a chromedp context bounded by d that also ends with ctx
func (s *Session) scope(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.ctx, d)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and waits for the body to be ready
func (s *Session) Navigate(ctx context.Context, url string) error {
	tctx, cancel := s.scope(ctx, s.loadTimeout)
	defer cancel()

	// A new document discards any dialog that was never drained
	select {
	case <-s.dialogs:
	default:
	}

	if err := chromedp.Run(tctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if s.ctx.Err() != nil {
			return fmt.Errorf("Chrome context was cancelled")
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// evaluate runs a script within the action timeout
func (s *Session) evaluate(ctx context.Context, script string, out interface{}) error {
	tctx, cancel := s.scope(ctx, s.actionTimeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Evaluate(script, out))
}

// onElement resolves ref in the live document and evaluates expr with the element bound to el
func (s *Session) onElement(ctx context.Context, ref Ref, expr string, out interface{}) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelectorAll(%s)[%d];
		if (!el) return {ok: false};
		return {ok: true, value: (%s)};
	})()`, jsString(ref.Selector), ref.Index, expr)

	var res struct {
		OK    bool            `json:"ok"`
		Value json.RawMessage `json:"value"`
	}
	if err := s.evaluate(ctx, script, &res); err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%w: %s", ErrStaleRef, ref)
	}
	if out != nil && len(res.Value) > 0 {
		return json.Unmarshal(res.Value, out)
	}
	return nil
}

// FindAll returns a Ref for every element currently matching selector
func (s *Session) FindAll(ctx context.Context, selector string) ([]Ref, error) {
	var n int
	if err := s.evaluate(ctx, fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}

	refs := make([]Ref, n)
	for i := range refs {
		refs[i] = Ref{Selector: selector, Index: i}
	}
	return refs, nil
}

// FindOne returns the first element matching selector
func (s *Session) FindOne(ctx context.Context, selector string) (Ref, bool, error) {
	refs, err := s.FindAll(ctx, selector)
	if err != nil || len(refs) == 0 {
		return Ref{}, false, err
	}
	return refs[0], true, nil
}

// Related finds the closest ancestor of ref matching ancestor, then the first descendant
// of it matching child. The result is addressed among all matches of child.
func (s *Session) Related(ctx context.Context, ref Ref, ancestor, child string) (Ref, bool, error) {
	expr := fmt.Sprintf(`(() => {
		const row = el.closest(%[1]s);
		if (!row) return -1;
		const target = row.querySelector(%[2]s);
		if (!target) return -1;
		return Array.prototype.indexOf.call(document.querySelectorAll(%[2]s), target);
	})()`, jsString(ancestor), jsString(child))

	var idx int
	if err := s.onElement(ctx, ref, expr, &idx); err != nil {
		return Ref{}, false, err
	}
	if idx < 0 {
		return Ref{}, false, nil
	}
	return Ref{Selector: child, Index: idx}, true, nil
}

// ScrollIntoView centers the element in the viewport
func (s *Session) ScrollIntoView(ctx context.Context, ref Ref) error {
	return s.onElement(ctx, ref, `(el.scrollIntoView({block: 'center'}), true)`, nil)
}

// Invoke clicks the element with a native mouse event and falls back to a scripted click
// when the native click fails or would land on another element, e.g. an overlay
func (s *Session) Invoke(ctx context.Context, ref Ref) error {
	return invoke(ctx, s, ref)
}

// clickSteps are the primitives invoke combines into a safe click
type clickSteps interface {
	hitTest(ctx context.Context, ref Ref) (bool, error)
	mouseClick(ctx context.Context, ref Ref) error
	scriptClick(ctx context.Context, ref Ref) error
}

func invoke(ctx context.Context, c clickSteps, ref Ref) error {
	nativeErr := nativeClick(ctx, c, ref)
	if nativeErr == nil {
		return nil
	}
	logging.Debug("Native click on %s failed, trying scripted click: %v", ref, nativeErr)

	if err := c.scriptClick(ctx, ref); err != nil {
		return fmt.Errorf("click %s: %w (native: %v)", ref, err, nativeErr)
	}
	return nil
}

// nativeClick sends mouse events only when the element itself sits at its centre point.
// A mouse click on a covered element succeeds at the protocol level but reaches the cover.
func nativeClick(ctx context.Context, c clickSteps, ref Ref) error {
	onTarget, err := c.hitTest(ctx, ref)
	if err != nil {
		return err
	}
	if !onTarget {
		return fmt.Errorf("%w: %s", ErrClickIntercepted, ref)
	}
	return c.mouseClick(ctx, ref)
}

func (s *Session) hitTest(ctx context.Context, ref Ref) (bool, error) {
	var onTarget bool
	err := s.onElement(ctx, ref, `(() => {
		el.scrollIntoView({block: 'center'});
		const box = el.getBoundingClientRect();
		const hit = document.elementFromPoint(box.left + box.width / 2, box.top + box.height / 2);
		return !!hit && el.contains(hit);
	})()`, &onTarget)
	return onTarget, err
}

func (s *Session) mouseClick(ctx context.Context, ref Ref) error {
	tctx, cancel := s.scope(ctx, s.actionTimeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(tctx, chromedp.Nodes(ref.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if ref.Index >= len(nodes) {
		return fmt.Errorf("%w: %s", ErrStaleRef, ref)
	}
	return chromedp.Run(tctx, chromedp.MouseClickNode(nodes[ref.Index]))
}

// scriptClick dispatches el.click(). Deferred so a dialog opened by the handler cannot
// block the evaluation.
func (s *Session) scriptClick(ctx context.Context, ref Ref) error {
	return s.onElement(ctx, ref, `(setTimeout(() => el.click(), 0), true)`, nil)
}

// Text returns the trimmed visible text of the element
func (s *Session) Text(ctx context.Context, ref Ref) (string, error) {
	var text string
	err := s.onElement(ctx, ref, `(el.innerText || el.textContent || '').trim()`, &text)
	return text, err
}

// Value returns the element's value property, or its value attribute
func (s *Session) Value(ctx context.Context, ref Ref) (string, error) {
	var value string
	err := s.onElement(ctx, ref, `el.value || el.getAttribute('value') || ''`, &value)
	return value, err
}

// Attr returns the named attribute of the element, empty when it is not set
func (s *Session) Attr(ctx context.Context, ref Ref, name string) (string, error) {
	var value string
	err := s.onElement(ctx, ref, fmt.Sprintf(`el.getAttribute(%s) || ''`, jsString(name)), &value)
	return value, err
}

// Enabled reports whether the element is not disabled
func (s *Session) Enabled(ctx context.Context, ref Ref) (bool, error) {
	var enabled bool
	err := s.onElement(ctx, ref, `!el.disabled && !el.hasAttribute('disabled')`, &enabled)
	return enabled, err
}

// DrainDialog waits up to timeout for one native dialog and reports whether one was accepted
func (s *Session) DrainDialog(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.dialogs:
		logging.Debug("Accepted dialog: %q", msg)
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// HTML returns the current document's markup
func (s *Session) HTML(ctx context.Context) (string, error) {
	tctx, cancel := s.scope(ctx, 10*time.Second)
	defer cancel()

	var html string
	err := chromedp.Run(tctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close closes the browser and cleans up resources
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// jsString renders s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
