package sweep

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/config"
)

// fakeRow is one enrollee of the scripted portal
type fakeRow struct {
	id        string // record id in the profile link's handler, empty for none
	name      string
	email     string
	pending   bool
	failTimes int // clicks on the pending marker that never bring up the confirmation
	noTrigger bool
}

// fakePortal is an in-memory enrollee view with the portal's pagination and modal behaviour
type fakePortal struct {
	sel      config.SelectorConfig
	rows     []*fakeRow
	pageSize int
	page     int
	useNext  bool // only the next control is rendered
	both     bool // numbered and next controls are rendered
	disabled map[int]bool

	// staleEmail is the address in a closed profile dialog left in the DOM, empty for none
	staleEmail string

	confirmFor *fakeRow
	detailFor  *fakeRow
	dialog     bool

	onRegister func(p *fakePortal, r *fakeRow)
	onDetail   func(p *fakePortal, r *fakeRow)

	registered  []string
	navigations int
	nextClicks  int
}

func newFakePortal(pageSize int, rows ...*fakeRow) *fakePortal {
	return &fakePortal{
		sel:      config.DefaultSelectors(),
		rows:     rows,
		pageSize: pageSize,
		page:     1,
	}
}

func (p *fakePortal) row(name string) *fakeRow {
	for _, r := range p.rows {
		if r.name == name {
			return r
		}
	}
	return nil
}

func (p *fakePortal) numPages() int {
	n := (len(p.rows) + p.pageSize - 1) / p.pageSize
	if n == 0 {
		n = 1
	}
	return n
}

func (p *fakePortal) visible() []*fakeRow {
	start := (p.page - 1) * p.pageSize
	if start >= len(p.rows) {
		return nil
	}
	end := start + p.pageSize
	if end > len(p.rows) {
		end = len(p.rows)
	}
	return p.rows[start:end]
}

func (p *fakePortal) pendingRows() []*fakeRow {
	var out []*fakeRow
	for _, r := range p.visible() {
		if r.pending {
			out = append(out, r)
		}
	}
	return out
}

func (p *fakePortal) triggerRows() []*fakeRow {
	var out []*fakeRow
	for _, r := range p.visible() {
		if !r.noTrigger {
			out = append(out, r)
		}
	}
	return out
}

func (p *fakePortal) modalOpen() bool {
	return p.confirmFor != nil || p.detailFor != nil
}

func (p *fakePortal) pageButton(selector string) (int, bool) {
	for n := 1; n <= 100; n++ {
		if fmt.Sprintf(p.sel.PageButton, n) == selector {
			return n, true
		}
	}
	return 0, false
}

// leftover reports whether selector also matches the closed dialog, i.e. is not limited to
// the open one
func (p *fakePortal) leftover(selector string) bool {
	return p.staleEmail != "" && !strings.Contains(selector, ".modal.show")
}

// leftoverAt reports whether ref addresses the closed dialog, which precedes the open one
func (p *fakePortal) leftoverAt(ref browser.Ref) bool {
	return p.leftover(ref.Selector) && ref.Index == 0
}

func (p *fakePortal) count(selector string) int {
	switch selector {
	case p.sel.Pending:
		return len(p.pendingRows())
	case p.sel.DetailTrigger:
		return len(p.triggerRows())
	case p.sel.Confirm:
		if p.confirmFor != nil {
			return 1
		}
	case p.sel.Modal:
		if p.modalOpen() {
			return 1
		}
	case p.sel.ModalClose:
		n := 0
		if p.leftover(selector) {
			n++
		}
		if p.detailFor != nil {
			n++
		}
		return n
	case p.sel.EmailInput:
		n := 0
		if p.leftover(selector) {
			n++
		}
		if p.detailFor != nil && strings.Contains(p.detailFor.email, "@") {
			n++
		}
		return n
	case p.sel.NextButton:
		if (p.useNext || p.both) && p.page < p.numPages() {
			return 1
		}
	}
	if n, ok := p.pageButton(selector); ok && (!p.useNext || p.both) && n <= p.numPages() {
		return 1
	}
	return 0
}

func (p *fakePortal) check(ref browser.Ref) error {
	if ref.Index < 0 || ref.Index >= p.count(ref.Selector) {
		return fmt.Errorf("%w: %s", browser.ErrStaleRef, ref)
	}
	return nil
}

func (p *fakePortal) rowFor(ref browser.Ref) (*fakeRow, error) {
	if err := p.check(ref); err != nil {
		return nil, err
	}
	switch ref.Selector {
	case p.sel.Pending:
		return p.pendingRows()[ref.Index], nil
	case p.sel.DetailTrigger:
		return p.triggerRows()[ref.Index], nil
	}
	return nil, fmt.Errorf("%s does not address a row", ref)
}

func (p *fakePortal) Navigate(ctx context.Context, url string) error {
	p.navigations++
	p.page = 1
	p.confirmFor = nil
	p.detailFor = nil
	p.dialog = false
	return nil
}

func (p *fakePortal) FindAll(ctx context.Context, selector string) ([]browser.Ref, error) {
	n := p.count(selector)
	refs := make([]browser.Ref, n)
	for i := range refs {
		refs[i] = browser.Ref{Selector: selector, Index: i}
	}
	return refs, nil
}

func (p *fakePortal) FindOne(ctx context.Context, selector string) (browser.Ref, bool, error) {
	if p.count(selector) == 0 {
		return browser.Ref{}, false, nil
	}
	return browser.Ref{Selector: selector}, true, nil
}

func (p *fakePortal) Related(ctx context.Context, ref browser.Ref, ancestor, child string) (browser.Ref, bool, error) {
	r, err := p.rowFor(ref)
	if err != nil {
		return browser.Ref{}, false, err
	}
	if ancestor != p.sel.Row || child != p.sel.DetailTrigger || r.noTrigger {
		return browser.Ref{}, false, nil
	}
	for i, t := range p.triggerRows() {
		if t == r {
			return browser.Ref{Selector: child, Index: i}, true, nil
		}
	}
	return browser.Ref{}, false, nil
}

func (p *fakePortal) ScrollIntoView(ctx context.Context, ref browser.Ref) error {
	return p.check(ref)
}

func (p *fakePortal) Invoke(ctx context.Context, ref browser.Ref) error {
	if err := p.check(ref); err != nil {
		return err
	}

	switch ref.Selector {
	case p.sel.Pending:
		r := p.pendingRows()[ref.Index]
		if r.failTimes > 0 {
			r.failTimes--
			return nil
		}
		p.confirmFor = r
	case p.sel.Confirm:
		r := p.confirmFor
		r.pending = false
		p.confirmFor = nil
		p.dialog = true
		p.registered = append(p.registered, r.name)
		if p.onRegister != nil {
			p.onRegister(p, r)
		}
	case p.sel.DetailTrigger:
		r := p.triggerRows()[ref.Index]
		p.detailFor = r
		if p.onDetail != nil {
			p.onDetail(p, r)
		}
	case p.sel.ModalClose:
		if !p.leftoverAt(ref) {
			p.detailFor = nil
		}
	case p.sel.NextButton:
		p.nextClicks++
		p.page++
	default:
		n, ok := p.pageButton(ref.Selector)
		if !ok {
			return fmt.Errorf("nothing to click at %s", ref)
		}
		p.page = n
	}
	return nil
}

func (p *fakePortal) Text(ctx context.Context, ref browser.Ref) (string, error) {
	r, err := p.rowFor(ref)
	if err != nil {
		return "", err
	}
	return r.name, nil
}

func (p *fakePortal) Value(ctx context.Context, ref browser.Ref) (string, error) {
	if err := p.check(ref); err != nil {
		return "", err
	}
	if ref.Selector == p.sel.EmailInput {
		if p.leftoverAt(ref) {
			return p.staleEmail, nil
		}
		return p.detailFor.email, nil
	}
	return "", nil
}

func (p *fakePortal) Attr(ctx context.Context, ref browser.Ref, name string) (string, error) {
	r, err := p.rowFor(ref)
	if err != nil {
		return "", err
	}
	if ref.Selector != p.sel.DetailTrigger || name != "onclick" || r.id == "" {
		return "", nil
	}
	return fmt.Sprintf("dialogUserInfo('%s')", r.id), nil
}

func (p *fakePortal) Enabled(ctx context.Context, ref browser.Ref) (bool, error) {
	if err := p.check(ref); err != nil {
		return false, err
	}
	if n, ok := p.pageButton(ref.Selector); ok && p.disabled[n] {
		return false, nil
	}
	return true, nil
}

func (p *fakePortal) DrainDialog(ctx context.Context, timeout time.Duration) (bool, error) {
	seen := p.dialog
	p.dialog = false
	return seen, nil
}

func (p *fakePortal) HTML(ctx context.Context) (string, error) {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for i, r := range p.visible() {
		b.WriteString("<tr><td>")
		if !r.noTrigger {
			fmt.Fprintf(&b, `<a onclick="dialogUserInfo(%d)">%s</a>`, i, r.name)
		}
		b.WriteString("</td><td>")
		if r.pending {
			fmt.Fprintf(&b, `<i class="icon-checkbox-checked2" onclick="single(%d)"></i>`, i)
		}
		b.WriteString("</td></tr>")
	}
	b.WriteString("</table></body></html>")
	return b.String(), nil
}
