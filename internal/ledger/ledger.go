// Package ledger merges captured participants into the per-course worksheets of the shared
// spreadsheet. Writes are append-only and skip any email the worksheet already holds.
package ledger

import (
	"context"
	"fmt"

	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/logging"
)

// Store is the worksheet storage the ledger writes through
type Store interface {
	// EnsureSheet creates the worksheet with the given header row when it does not exist
	EnsureSheet(ctx context.Context, name string, header []string) error
	// ColumnValues returns every cell of the zero-based column, header included
	ColumnValues(ctx context.Context, name string, column int) ([]string, error)
	// AppendRows adds rows after the last non-empty row
	AppendRows(ctx context.Context, name string, rows [][]string) error
}

// Outcome reports what one Merge call wrote
type Outcome struct {
	Ledger     string
	Appended   int
	Duplicates int
	NoEmail    int
	Err        error
}

// Ledger writes participant batches to a Store. A nil store makes every Merge a no-op.
type Ledger struct {
	store Store
}

// New creates a ledger over store, which may be nil when the spreadsheet is unreachable
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reachable reports whether the ledger has a store to write to
func (l *Ledger) Reachable() bool {
	return l != nil && l.store != nil
}

// Merge appends the participants whose email is not yet in the worksheet. Store errors are
// logged and returned in the outcome; the batch is not retried.
func (l *Ledger) Merge(ctx context.Context, ledgerName, courseID string, participants []domain.Participant) Outcome {
	out := Outcome{Ledger: ledgerName}
	if len(participants) == 0 {
		return out
	}
	if !l.Reachable() {
		logging.Error("Spreadsheet unavailable, %d participant(s) of course %s not saved", len(participants), courseID)
		return out
	}

	if err := l.store.EnsureSheet(ctx, ledgerName, domain.LedgerHeader); err != nil {
		return l.fail(out, courseID, fmt.Errorf("prepare worksheet %q: %w", ledgerName, err))
	}

	existing, err := l.store.ColumnValues(ctx, ledgerName, domain.EmailColumn)
	if err != nil {
		return l.fail(out, courseID, fmt.Errorf("read emails of %q: %w", ledgerName, err))
	}

	rows, fresh := filterNew(existing, participants)
	out.NoEmail = countWithoutEmail(participants)
	out.Duplicates = len(participants) - out.NoEmail - len(fresh)
	if len(rows) == 0 {
		logging.Info("No new participants to add to sheet '%s' (all already exist or have no email).", ledgerName)
		return out
	}

	if err := l.store.AppendRows(ctx, ledgerName, rows); err != nil {
		return l.fail(out, courseID, fmt.Errorf("append to %q: %w", ledgerName, err))
	}

	out.Appended = len(rows)
	logging.Info("Successfully added %d new participant(s) to sheet '%s'.", out.Appended, ledgerName)
	return out
}

func (l *Ledger) fail(out Outcome, courseID string, err error) Outcome {
	logging.Error("Error updating Google Sheet for course %s: %v", courseID, err)
	out.Err = err
	return out
}

// filterNew keeps participants with an email that is neither in existing nor earlier in the
// batch, in input order
func filterNew(existing []string, participants []domain.Participant) ([][]string, []domain.Participant) {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		if key := domain.EmailKey(v); key != "" {
			seen[key] = true
		}
	}

	var rows [][]string
	var fresh []domain.Participant
	for _, p := range participants {
		key := domain.EmailKey(p.Email)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, p.Row())
		fresh = append(fresh, p)
	}
	return rows, fresh
}

func countWithoutEmail(participants []domain.Participant) int {
	n := 0
	for _, p := range participants {
		if domain.EmailKey(p.Email) == "" {
			n++
		}
	}
	return n
}
