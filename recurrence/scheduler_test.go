package recurrence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-ledger/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_SweepFillsHorizon(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	require.NoError(t, mem.SaveOwner(ctx, ledger.Owner{ID: "owner-2", Name: "Sam"}))
	clock := &fakeClock{now: epoch}

	rent := addRule(t, mem, testOwner, rentRequest("2025-01-01", "monthly"))
	gym := addRule(t, mem, "owner-2", rentRequest("2025-01-06", "weekly"))

	sched := NewScheduler(mem, NewMaterializer(mem), clock)

	// WHEN: one sweep runs on Jan 1 with a 90-day horizon (through Apr 1)
	report := sched.Sweep(ctx)

	// THEN
	assert.Equal(t, "2025-04-01", report.Horizon.String())
	assert.Equal(t, 2, report.Rules)
	assert.Equal(t, 2, report.Eligible)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"2025-01-01", "2025-02-01", "2025-03-01", "2025-04-01"}, persistedDates(t, mem, rent))
	assert.Len(t, persistedDates(t, mem, gym), 13)
	assert.Equal(t, 17, report.Created)

	at, last, ok := sched.State.LastSweep()
	require.True(t, ok)
	assert.True(t, epoch.Equal(at))
	assert.Equal(t, report.Created, last.Created)
}

func TestScheduler_RepeatedSweepIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	clock := &fakeClock{now: epoch}
	rule := addRule(t, mem, testOwner, rentRequest("2025-01-01", "monthly"))
	sched := NewScheduler(mem, NewMaterializer(mem), clock)

	sched.Sweep(ctx)
	wm := watermark(t, mem, rule)

	second := sched.Sweep(ctx)

	assert.Zero(t, second.Created)
	assert.Zero(t, second.Eligible, "watermark already sits on the horizon")
	assert.Equal(t, wm, watermark(t, mem, rule))
	assert.Equal(t, 2, sched.State.Sweeps())
}

func TestScheduler_RollingHorizonAdvances(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	clock := &fakeClock{now: epoch}
	rule := addRule(t, mem, testOwner, rentRequest("2025-01-01", "monthly"))
	sched := NewScheduler(mem, NewMaterializer(mem), clock)

	sched.Sweep(ctx)
	clock.Advance(31 * 24 * time.Hour)
	report := sched.Sweep(ctx)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, "2025-05-01", watermark(t, mem, rule))
}

func TestScheduler_SkipsFinishedRules(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	clock := &fakeClock{now: epoch}

	req := rentRequest("2024-01-01", "monthly")
	req.EndDate = d("2024-06-01").Ptr()
	rule := addRule(t, mem, testOwner, req)
	_, err := mem.AdvanceWatermark(ctx, testOwner, rule.ID, d("2024-06-01"))
	require.NoError(t, err)

	report := NewScheduler(mem, NewMaterializer(mem), clock).Sweep(ctx)
	assert.Equal(t, 1, report.Rules)
	assert.Zero(t, report.Eligible)
}

func TestScheduler_SkipsRulesWithCountReached(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	clock := &fakeClock{now: epoch}

	// GIVEN: a count=3 monthly rule fully materialized before the horizon
	req := rentRequest("2025-01-01", "monthly")
	req.Count = intPtr(3)
	rule := addRule(t, mem, testOwner, req)
	materializer := &countingMaterializer{next: NewMaterializer(mem)}
	sched := NewScheduler(mem, materializer, clock)

	first := sched.Sweep(ctx)
	require.Equal(t, 1, first.Eligible)
	require.Equal(t, 3, first.Created)
	assert.Equal(t, "2025-03-01", watermark(t, mem, rule))

	// WHEN: later sweeps run with the rule still behind the horizon
	for i := 0; i < 3; i++ {
		report := sched.Sweep(ctx)

		// THEN: the rule is not visited again
		assert.Equal(t, 1, report.Rules)
		assert.Zero(t, report.Eligible)
		assert.Zero(t, report.Created)
	}
	assert.Equal(t, 1, materializer.calls)
	assert.Len(t, persistedDates(t, mem, rule), 3)
}

func TestScheduler_CountedRuleWithRoomIsSwept(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	clock := &fakeClock{now: epoch}

	req := rentRequest("2025-01-01", "monthly")
	req.Count = intPtr(6)
	rule := addRule(t, mem, testOwner, req)
	sched := NewScheduler(mem, NewMaterializer(mem), clock)

	report := sched.Sweep(ctx)
	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 4, report.Created)

	clock.Advance(120 * 24 * time.Hour)
	report = sched.Sweep(ctx)
	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 2, report.Created)
	assert.Len(t, persistedDates(t, mem, rule), 6)

	report = sched.Sweep(ctx)
	assert.Zero(t, report.Eligible)
}

func TestScheduler_CanceledSweepReportsError(t *testing.T) {
	mem := newStore(t)
	rule := addRule(t, mem, testOwner, rentRequest("2025-01-01", "monthly"))
	sched := NewScheduler(mem, NewMaterializer(mem), &fakeClock{now: epoch})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := sched.Sweep(ctx)

	assert.Equal(t, context.Canceled.Error(), report.Error)
	assert.Zero(t, report.Created)
	assert.Empty(t, persistedDates(t, mem, rule))
}

type countingMaterializer struct {
	mu    sync.Mutex
	calls int
	next  RuleMaterializer
}

func (c *countingMaterializer) Materialize(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID, opts Options) (Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.Materialize(ctx, ownerID, ruleID, opts)
}

func TestEligible(t *testing.T) {
	horizon := d("2025-04-01")

	assert.True(t, Eligible(ledger.Rule{StartDate: d("2025-01-01"), Cadence: ledger.CadenceMonthly, Interval: 1}, horizon))

	wm := d("2025-04-01")
	assert.False(t, Eligible(ledger.Rule{Cadence: ledger.CadenceMonthly, Interval: 1, LastGenerated: &wm}, horizon))

	wm = d("2025-03-01")
	end := d("2025-03-15")
	assert.False(t, Eligible(ledger.Rule{Cadence: ledger.CadenceMonthly, Interval: 1, LastGenerated: &wm, EndDate: &end}, horizon))

	end = d("2025-12-31")
	assert.True(t, Eligible(ledger.Rule{Cadence: ledger.CadenceMonthly, Interval: 1, LastGenerated: &wm, EndDate: &end}, horizon))
}

type flakyMaterializer struct {
	mu    sync.Mutex
	fail  map[ledger.RuleID]bool
	calls map[ledger.RuleID]int
}

func (f *flakyMaterializer) Materialize(_ context.Context, _ ledger.OwnerID, ruleID ledger.RuleID, _ Options) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ruleID]++
	if f.fail[ruleID] {
		return Result{}, errors.New("database is locked")
	}
	return Result{RuleID: ruleID}, nil
}

func TestScheduler_FailuresAreRecordedAndRetried(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t)
	clock := &fakeClock{now: epoch}
	good := addRule(t, mem, testOwner, rentRequest("2025-01-01", "monthly"))
	bad := addRule(t, mem, testOwner, rentRequest("2025-01-02", "monthly"))

	fake := &flakyMaterializer{fail: map[ledger.RuleID]bool{bad.ID: true}, calls: map[ledger.RuleID]int{}}
	sched := NewScheduler(mem, fake, clock)

	report := sched.Sweep(ctx)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad.ID, report.Failures[0].RuleID)
	assert.Equal(t, "database is locked", report.Failures[0].Error)

	sched.Sweep(ctx)
	assert.Equal(t, 2, fake.calls[bad.ID])
	assert.Equal(t, 2, fake.calls[good.ID])
}

type brokenLister struct{}

func (brokenLister) ListAllRules(context.Context) ([]ledger.Rule, error) {
	return nil, errors.New("connection refused")
}

func (brokenLister) CountOccurrencesByRule(context.Context, ledger.OwnerID, ledger.RuleID) (int, error) {
	return 0, errors.New("connection refused")
}

func TestScheduler_ListFailureIsReported(t *testing.T) {
	clock := &fakeClock{now: epoch}
	sched := NewScheduler(brokenLister{}, &flakyMaterializer{}, clock)

	report := sched.Sweep(context.Background())
	assert.Equal(t, "connection refused", report.Error)
	assert.Equal(t, 1, sched.State.Sweeps())
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	mem := newStore(t)
	rule := addRule(t, mem, testOwner, rentRequest("2025-01-01", "monthly"))
	sched := NewScheduler(mem, NewMaterializer(mem), &fakeClock{now: epoch})
	sched.Interval = time.Hour

	sched.Start(context.Background())
	defer sched.Stop()

	assert.Eventually(t, func() bool { return sched.State.Sweeps() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, persistedDates(t, mem, rule))
	assert.True(t, epoch.Add(time.Hour).Equal(sched.NextRunTime()))
}

func TestScheduler_Disabled(t *testing.T) {
	mem := newStore(t)
	sched := NewScheduler(mem, NewMaterializer(mem), &fakeClock{now: epoch})
	sched.Enabled = false

	sched.Start(context.Background())
	sched.Stop()

	assert.Zero(t, sched.State.Sweeps())
	assert.True(t, epoch.Equal(sched.NextRunTime()))
}
