// Package census reads enrollee counts out of a snapshot of the enrollee view without
// touching the live page.
package census

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors locate enrollee rows in the snapshot
type Selectors struct {
	Pending       string
	Row           string
	DetailTrigger string
}

// Row is one enrollee as rendered on a page
type Row struct {
	Name    string
	Pending bool
}

// Page is the census of one result page
type Page struct {
	Number  int
	Rows    []Row
	Pending int
}

// Registered returns the number of rows without a pending marker
func (p Page) Registered() int {
	return len(p.Rows) - p.pendingRows()
}

func (p Page) pendingRows() int {
	n := 0
	for _, r := range p.Rows {
		if r.Pending {
			n++
		}
	}
	return n
}

// Parse builds the census of page number n from its markup
func Parse(html string, n int, sel Selectors) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse HTML with goquery: %w", err)
	}

	page := Page{
		Number:  n,
		Pending: doc.Find(sel.Pending).Length(),
	}

	doc.Find(sel.DetailTrigger).Each(func(i int, s *goquery.Selection) {
		row := s.Closest(sel.Row)
		page.Rows = append(page.Rows, Row{
			Name:    strings.Join(strings.Fields(s.Text()), " "),
			Pending: row.Length() > 0 && row.Find(sel.Pending).Length() > 0,
		})
	})

	return page, nil
}

// Totals sums pending markers and rows over several pages
func Totals(pages []Page) (pending, rows int) {
	for _, p := range pages {
		pending += p.Pending
		rows += len(p.Rows)
	}
	return pending, rows
}
