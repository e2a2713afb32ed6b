package sweep

import (
	"context"
	"fmt"

	"github.com/lance13c/roster/internal/census"
	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/logging"
)

// Scan visits every result page of the course without registering anyone and returns
// the census of each page
func (e *Engine) Scan(ctx context.Context, job domain.CourseJob, courseURL string) ([]census.Page, error) {
	if err := e.view.Navigate(ctx, courseURL); err != nil {
		return nil, fmt.Errorf("open course %s: %w", job.CourseID, err)
	}
	if !e.settle(ctx) {
		return nil, ctx.Err()
	}

	sel := census.Selectors{
		Pending:       e.sel.Pending,
		Row:           e.sel.Row,
		DetailTrigger: e.sel.DetailTrigger,
	}

	var pages []census.Page
	for n := 1; ; n++ {
		html, err := e.view.HTML(ctx)
		if err != nil {
			return pages, fmt.Errorf("snapshot page %d: %w", n, err)
		}
		page, err := census.Parse(html, n, sel)
		if err != nil {
			return pages, err
		}
		logging.Debug("Course %s page %d: %d rows, %d pending", job.CourseID, n, len(page.Rows), page.Pending)
		pages = append(pages, page)

		if n >= e.limits.MaxPages || !e.changePage(ctx, n+1, true) {
			break
		}
	}

	if ctx.Err() != nil {
		return pages, ctx.Err()
	}
	return pages, nil
}
