package sweep

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/config"
	"github.com/lance13c/roster/internal/domain"
)

const courseURL = "https://portal.test/trainings/8473?accordion=student"

var (
	job      = domain.CourseJob{CourseID: "8473", Ledger: "Course 8473"}
	fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
)

func testOptions() Options {
	return Options{
		Selectors: config.DefaultSelectors(),
		Timeouts: config.TimeoutConfig{
			Confirm:      15 * time.Millisecond,
			Dialog:       time.Millisecond,
			Extract:      15 * time.Millisecond,
			Modal:        15 * time.Millisecond,
			PollInterval: time.Millisecond,
			Action:       time.Second,
		},
		Limits: config.LimitConfig{
			MaxAttempts: 2,
			MaxSweeps:   50,
			MaxPages:    10,
		},
		Now: func() time.Time { return fixedNow },
	}
}

func pending(name string) *fakeRow {
	return &fakeRow{name: name, email: strings.ToLower(name) + "@example.mn", pending: true}
}

func registeredRow(name string) *fakeRow {
	return &fakeRow{name: name, email: strings.ToLower(name) + "@example.mn"}
}

// moveToFront mimics the portal listing freshly registered enrollees first
func moveToFront(p *fakePortal, r *fakeRow) {
	rows := []*fakeRow{r}
	for _, other := range p.rows {
		if other != r {
			rows = append(rows, other)
		}
	}
	p.rows = rows
}

func emails(ps []domain.Participant) map[string]string {
	out := make(map[string]string, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Email
	}
	return out
}

func TestRunNothingPending(t *testing.T) {
	portal := newFakePortal(5, registeredRow("A"), registeredRow("B"))
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sweeps)
	assert.Zero(t, result.Registered)
	assert.Empty(t, result.Participants)
	assert.Equal(t, Done, result.FinalState)
	assert.Equal(t, Done, engine.State())
	assert.Zero(t, portal.navigations)
}

func TestRunRestartsFromFirstPageAfterRegistration(t *testing.T) {
	portal := newFakePortal(2,
		registeredRow("A"), registeredRow("B"),
		pending("C"), registeredRow("D"),
		pending("E"),
	)
	portal.onRegister = moveToFront
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "E"}, portal.registered)
	assert.Equal(t, 2, result.Registered)
	assert.Equal(t, 3, result.Sweeps)
	assert.Zero(t, result.Failures)
	assert.Equal(t, map[string]string{"C": "c@example.mn", "E": "e@example.mn"}, emails(result.Participants))
	assert.Equal(t, 1, portal.page)

	for _, p := range result.Participants {
		assert.Equal(t, "8473", p.CourseID)
		assert.Equal(t, domain.StatusNew, p.Status)
		assert.Equal(t, fixedNow, p.CapturedAt)
	}
}

func TestRunReloadsAndRetriesAfterFailure(t *testing.T) {
	a := pending("A")
	a.failTimes = 1
	portal := newFakePortal(5, a, pending("B"), pending("C"))
	opts := testOptions()
	opts.SnapshotDir = t.TempDir()
	engine := New(portal, opts)

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	snapshots, err := os.ReadDir(opts.SnapshotDir)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Contains(t, snapshots[0].Name(), "8473-")

	assert.Equal(t, []string{"A", "B", "C"}, portal.registered)
	assert.Equal(t, 3, result.Registered)
	assert.Equal(t, 1, result.Failures)
	assert.Empty(t, result.Quarantined)
	assert.Equal(t, 1, portal.navigations)
	assert.Len(t, result.Participants, 3)
}

func TestRunQuarantinesPermanentFailure(t *testing.T) {
	a := pending("A")
	a.failTimes = 1000
	portal := newFakePortal(5, a, pending("B"), pending("C"))
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, portal.registered)
	assert.Equal(t, []string{"A"}, result.Quarantined)
	assert.Equal(t, 2, result.Failures)
	assert.True(t, a.pending)
	assert.Equal(t, Done, result.FinalState)
}

func TestRunStopsAtSweepLimit(t *testing.T) {
	a := pending("A")
	a.failTimes = 1000
	portal := newFakePortal(5, a)

	opts := testOptions()
	opts.Limits.MaxAttempts = 100
	opts.Limits.MaxSweeps = 3
	engine := New(portal, opts)

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Sweeps)
	assert.Equal(t, 3, result.Failures)
	assert.Zero(t, result.Registered)
	assert.Equal(t, Done, result.FinalState)
}

func TestRunResolvesMarkerAgainAfterReorder(t *testing.T) {
	portal := newFakePortal(5, pending("A"), pending("B"))
	// Opening a profile re-renders the list in a different order
	portal.onDetail = func(p *fakePortal, _ *fakeRow) {
		for i, j := 0, len(p.rows)-1; i < j; i, j = i+1, j-1 {
			p.rows[i], p.rows[j] = p.rows[j], p.rows[i]
		}
	}
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A", "B"}, portal.registered)
	assert.Equal(t, map[string]string{"A": "a@example.mn", "B": "b@example.mn"}, emails(result.Participants))
}

func TestRunCountsRegistrationsWithoutContact(t *testing.T) {
	anonymous := pending("A")
	anonymous.noTrigger = true
	portal := newFakePortal(5, anonymous, pending("B"))
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Registered)
	require.Len(t, result.Participants, 1)
	assert.Equal(t, "B", result.Participants[0].Name)
	assert.LessOrEqual(t, len(result.Participants), result.Registered)
}

func TestRunPaginatesWithNextControl(t *testing.T) {
	portal := newFakePortal(1, registeredRow("A"), registeredRow("B"), pending("C"))
	portal.useNext = true
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"C"}, portal.registered)
	assert.Equal(t, 2, result.Sweeps)
	// No numbered page 1 control, so every return to page 1 is a reload
	assert.Equal(t, 2, portal.navigations)
	assert.Equal(t, 1, portal.page)
}

func TestRunUsesNextControlWhenPageButtonDisabled(t *testing.T) {
	portal := newFakePortal(1, registeredRow("A"), registeredRow("B"), pending("C"))
	portal.both = true
	portal.disabled = map[int]bool{2: true}
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"C"}, portal.registered)
	assert.Equal(t, 2, result.Sweeps)
	// Page 2 is reached through the next control in both sweeps
	assert.Equal(t, 2, portal.nextClicks)
	assert.Zero(t, portal.navigations)
	assert.Equal(t, 1, portal.page)
}

func TestRunKeepsNamesakesApart(t *testing.T) {
	broken := pending("Bat")
	broken.id = "11"
	broken.failTimes = 99
	other := pending("Bat")
	other.id = "12"
	portal := newFakePortal(5, broken, other)
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bat #11"}, result.Quarantined)
	assert.Equal(t, []string{"Bat"}, portal.registered)
	assert.False(t, other.pending, "a failing namesake must not hide this row")
	assert.True(t, broken.pending)
	assert.Equal(t, 2, result.Failures)
}

func TestRunStopsAtPageLimit(t *testing.T) {
	portal := newFakePortal(1, registeredRow("A"), registeredRow("B"), pending("C"))
	opts := testOptions()
	opts.Limits.MaxPages = 2
	engine := New(portal, opts)

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Empty(t, portal.registered)
	assert.Equal(t, 1, result.Sweeps)
	assert.Equal(t, 2, portal.page)
	assert.True(t, portal.row("C").pending)
}

func TestRunHonoursCancellation(t *testing.T) {
	portal := newFakePortal(5, pending("A"))
	engine := New(portal, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Run(ctx, job, courseURL)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Sweeps)
	assert.Empty(t, portal.registered)
}

func TestExtractContactWithoutEmail(t *testing.T) {
	row := pending("Bold")
	row.email = ""
	portal := newFakePortal(5, row)
	engine := New(portal, testOptions())

	trigger := browser.Ref{Selector: portal.sel.DetailTrigger}
	name, email := engine.extractContact(context.Background(), trigger)

	assert.Equal(t, "Bold", name)
	assert.Empty(t, email)
	assert.Nil(t, portal.detailFor, "profile dialog must be closed")
}

func TestExtractContactIgnoresClosedDialog(t *testing.T) {
	portal := newFakePortal(5, pending("Anu"), pending("Bat"))
	portal.staleEmail = "previous@example.mn"
	engine := New(portal, testOptions())

	result, err := engine.Run(context.Background(), job, courseURL)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"Anu": "anu@example.mn", "Bat": "bat@example.mn"}, emails(result.Participants))
	assert.Nil(t, portal.detailFor, "the open profile dialog must be the one closed")
}

func TestRegisterStopsWhenCancelled(t *testing.T) {
	portal := newFakePortal(5, pending("Anu"))
	opts := testOptions()
	opts.Timeouts.StepPause = time.Second
	engine := New(portal, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.register(ctx, browser.Ref{Selector: portal.sel.Pending})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, portal.confirmFor, "the pending marker is not clicked after cancellation")
	assert.Empty(t, portal.registered)
}

func TestExtractContactSanitizesEmail(t *testing.T) {
	row := pending("Saraa")
	row.email = ` "saraa@example.mn' `
	portal := newFakePortal(5, row)
	engine := New(portal, testOptions())

	name, email := engine.extractContact(context.Background(), browser.Ref{Selector: portal.sel.DetailTrigger})

	assert.Equal(t, "Saraa", name)
	assert.Equal(t, "saraa@example.mn", email)
	assert.Nil(t, portal.detailFor)
}

func TestExtractContactStaleTrigger(t *testing.T) {
	portal := newFakePortal(5, pending("A"))
	engine := New(portal, testOptions())

	name, email := engine.extractContact(context.Background(), browser.Ref{Selector: portal.sel.DetailTrigger, Index: 4})

	assert.Equal(t, domain.UnknownName, name)
	assert.Empty(t, email)
}

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a@b.mn", "a@b.mn"},
		{`"a@b.mn"`, "a@b.mn"},
		{"  'a@b.mn'  ", "a@b.mn"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeEmail(tt.in))
		})
	}
}

func TestPositionalLabels(t *testing.T) {
	anonymous := pending("A")
	anonymous.noTrigger = true
	portal := newFakePortal(5, anonymous, pending("B"))
	engine := New(portal, testOptions())

	ctx := context.Background()
	first := engine.label(ctx, 3, browser.Ref{Selector: portal.sel.Pending, Index: 0})
	second := engine.label(ctx, 3, browser.Ref{Selector: portal.sel.Pending, Index: 1})

	assert.Equal(t, "row 1 on page 3", first)
	assert.True(t, isPositional(first))
	assert.Equal(t, "B", second)
	assert.False(t, isPositional(second))
}

func TestScan(t *testing.T) {
	portal := newFakePortal(2, pending("A"), registeredRow("B"), pending("C"))
	engine := New(portal, testOptions())

	pages, err := engine.Scan(context.Background(), job, courseURL)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 1, pages[0].Pending)
	assert.Equal(t, 1, pages[0].Registered())
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, 1, pages[1].Pending)
	assert.Empty(t, portal.registered)
	assert.Equal(t, 1, portal.navigations)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Sweeping", Sweeping.String())
	assert.Equal(t, "SweepExhausted", SweepExhausted.String())
	assert.Equal(t, "State(9)", State(9).String())
}
