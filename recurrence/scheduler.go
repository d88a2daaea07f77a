/*
scheduler.go - Periodic materialization sweep

PURPOSE:
  Keeps a rolling horizon of future occurrences populated for every rule.
  Each tick lists eligible rules and invokes the Materializer once per rule.

DESIGN:
  - Sweep() is one deterministic tick; tests drive it with a fixed Clock
  - Start() runs Sweep on a ticker (default: once a day) until Stop()
  - Rules are grouped by owner: owners run in parallel (Workers at a time),
    rules of one owner run sequentially
  - A failing rule is logged and retried on the next sweep; sweep errors
    never reach end users

ELIGIBILITY:
  A rule is swept when its watermark is unset or behind the horizon, its
  next date is not past its EndDate, and, for counted rules, fewer than
  Count occurrences reference it (see Exhausted). The Materializer rechecks
  the count inside its transaction.

STATE:
  SweepState holds lastSweepTime explicitly. It is created at startup and
  only Sweep writes to it.

CONFIGURATION:
  - Interval:    How often to sweep (default: 24h)
  - HorizonDays: Rolling horizon (default: 90)
  - MaxPerRule:  Occurrences per rule per sweep (default: 36, the hard cap)
  - Workers:     Owners processed concurrently (default: 4)
*/
package recurrence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/finance-ledger/ledger"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepInterval = 24 * time.Hour
	DefaultHorizonDays   = 90
	DefaultSweepWorkers  = 4
)

// Clock abstracts wall-clock time so sweeps can run on a virtual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RuleLister lists every rule across owners and counts what each one
// already generated.
type RuleLister interface {
	ListAllRules(ctx context.Context) ([]ledger.Rule, error)
	CountOccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (int, error)
}

// RuleMaterializer materializes a single rule.
type RuleMaterializer interface {
	Materialize(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID, opts Options) (Result, error)
}

// =============================================================================
// SWEEP STATE
// =============================================================================

// RuleFailure records one rule that failed during a sweep.
type RuleFailure struct {
	OwnerID ledger.OwnerID
	RuleID  ledger.RuleID
	Error   string
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Horizon     ledger.Date
	Rules       int
	Eligible    int
	Created     int
	Failures    []RuleFailure
	Error       string
}

// SweepState is the process-wide record of the last sweep.
type SweepState struct {
	mu        sync.RWMutex
	startedAt time.Time
	lastSweep time.Time
	last      SweepReport
	sweeps    int
}

// NewSweepState initializes the state at process startup.
func NewSweepState(startedAt time.Time) *SweepState {
	return &SweepState{startedAt: startedAt}
}

// LastSweep returns the time and report of the last sweep; ok is false
// until the first sweep completes.
func (s *SweepState) LastSweep() (at time.Time, report SweepReport, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSweep, s.last, s.sweeps > 0
}

// StartedAt is when the state was initialized.
func (s *SweepState) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Sweeps counts completed sweeps.
func (s *SweepState) Sweeps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sweeps
}

func (s *SweepState) record(at time.Time, r SweepReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSweep = at
	s.last = r
	s.sweeps++
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler sweeps rules on a fixed cadence.
type Scheduler struct {
	Rules        RuleLister
	Materializer RuleMaterializer
	Clock        Clock
	State        *SweepState
	Logger       zerolog.Logger

	Interval    time.Duration
	HorizonDays int
	MaxPerRule  int
	Workers     int
	Enabled     bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	sweep  sync.Mutex
}

// NewScheduler creates a scheduler with default knobs.
func NewScheduler(rules RuleLister, m RuleMaterializer, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		Rules:        rules,
		Materializer: m,
		Clock:        clock,
		State:        NewSweepState(clock.Now()),
		Logger:       zerolog.Nop(),
		Interval:     DefaultSweepInterval,
		HorizonDays:  DefaultHorizonDays,
		MaxPerRule:   MaxOccurrencesPerCall,
		Workers:      DefaultSweepWorkers,
		Enabled:      true,
	}
}

// Start begins sweeping in the background. The first sweep runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.ticker, s.stop)

	s.Logger.Info().Dur("interval", s.Interval).Int("horizon_days", s.HorizonDays).Msg("scheduler started")
}

// Stop stops the background loop and waits for an in-flight sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// NextRunTime returns when the next scheduled sweep is due.
func (s *Scheduler) NextRunTime() time.Time {
	at, _, ok := s.State.LastSweep()
	if !ok {
		return s.Clock.Now()
	}
	return at.Add(s.Interval)
}

// Sweep runs one tick: every eligible rule is materialized up to the
// horizon. Overlapping calls are serialized.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	s.sweep.Lock()
	defer s.sweep.Unlock()

	now := s.Clock.Now().UTC()
	today := ledger.DateOf(now)
	horizon := today.AddDays(s.HorizonDays)
	report := SweepReport{StartedAt: now, Horizon: horizon}

	rules, err := s.Rules.ListAllRules(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("sweep: list rules")
		report.Error = err.Error()
		report.CompletedAt = s.Clock.Now().UTC()
		s.State.record(now, report)
		return report
	}
	report.Rules = len(rules)

	var owners []ledger.OwnerID
	byOwner := make(map[ledger.OwnerID][]ledger.Rule)
	for _, r := range rules {
		if !Eligible(r, horizon) {
			continue
		}
		if r.Count != nil {
			generated, err := s.Rules.CountOccurrencesByRule(ctx, r.OwnerID, r.ID)
			if err != nil {
				report.Failures = append(report.Failures, RuleFailure{OwnerID: r.OwnerID, RuleID: r.ID, Error: err.Error()})
				s.Logger.Warn().Err(err).Str("rule_id", string(r.ID)).Msg("sweep: count occurrences failed")
				continue
			}
			if Exhausted(r, generated) {
				continue
			}
		}
		if _, seen := byOwner[r.OwnerID]; !seen {
			owners = append(owners, r.OwnerID)
		}
		byOwner[r.OwnerID] = append(byOwner[r.OwnerID], r)
		report.Eligible++
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(s.Workers, 1))
	for _, ownerID := range owners {
		ownerRules := byOwner[ownerID]
		g.Go(func() error {
			for _, r := range ownerRules {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := s.Materializer.Materialize(ctx, r.OwnerID, r.ID, Options{Horizon: &horizon, Limit: s.MaxPerRule})

				mu.Lock()
				if err != nil {
					report.Failures = append(report.Failures, RuleFailure{OwnerID: r.OwnerID, RuleID: r.ID, Error: err.Error()})
				} else {
					report.Created += len(res.Created)
				}
				mu.Unlock()

				if err != nil {
					s.Logger.Warn().Err(err).
						Str("owner_id", string(r.OwnerID)).
						Str("rule_id", string(r.ID)).
						Msg("sweep: materialize failed, retrying next cycle")
				}
			}
			return nil
		})
	}
	// Only cancellation stops a worker; per-rule errors are in Failures.
	if err := g.Wait(); err != nil {
		report.Error = err.Error()
	}

	report.CompletedAt = s.Clock.Now().UTC()
	s.State.record(now, report)

	s.Logger.Info().
		Int("rules", report.Rules).
		Int("eligible", report.Eligible).
		Int("created", report.Created).
		Int("failed", len(report.Failures)).
		Str("horizon", horizon.String()).
		Msg("sweep completed")

	return report
}

// Eligible reports whether a rule needs a sweep for the given horizon.
func Eligible(rule ledger.Rule, horizon ledger.Date) bool {
	if rule.LastGenerated != nil && rule.LastGenerated.AfterOrEqual(horizon) {
		return false
	}
	if rule.EndDate == nil {
		return true
	}
	next := rule.StartDate
	if rule.LastGenerated != nil {
		n, err := Advance(*rule.LastGenerated, rule.Cadence, rule.Interval)
		if err != nil {
			// Let the materializer surface the error.
			return true
		}
		next = n
	}
	return next.BeforeOrEqual(*rule.EndDate)
}
