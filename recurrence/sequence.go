package recurrence

import (
	"github.com/warp/finance-ledger/ledger"
)

// MaxOccurrencesPerCall is the hard ceiling on dates produced by one
// sequence, whatever count the caller asks for.
const MaxOccurrencesPerCall = 36

// SequenceParams bound a sequence of occurrence dates.
type SequenceParams struct {
	Start    ledger.Date
	Cadence  ledger.Cadence
	Interval int

	// MaxCount limits emitted dates. <= 0 or above the cap means the cap.
	MaxCount int

	// Until is inclusive. nil means no date bound.
	Until *ledger.Date
}

// Sequence lazily walks occurrence dates. It holds only its cursor, so two
// sequences built from the same params yield the same dates.
type Sequence struct {
	params  SequenceParams
	cursor  ledger.Date
	emitted int
	limit   int
	err     error
	done    bool
}

// NewSequence validates params and positions the cursor at Start.
func NewSequence(p SequenceParams) (*Sequence, error) {
	// Validate cadence and interval up front; advancing the start is a dry run.
	if _, err := Advance(p.Start, p.Cadence, p.Interval); err != nil {
		return nil, err
	}
	return &Sequence{params: p, cursor: p.Start, limit: clampCount(p.MaxCount)}, nil
}

// Next returns the next date, or false once a bound is reached.
func (s *Sequence) Next() (ledger.Date, bool) {
	if s.done || s.emitted >= s.limit {
		return ledger.Date{}, false
	}
	if s.params.Until != nil && s.cursor.After(*s.params.Until) {
		s.done = true
		return ledger.Date{}, false
	}

	current := s.cursor
	next, err := Advance(current, s.params.Cadence, s.params.Interval)
	if err != nil {
		s.err = err
		s.done = true
		return ledger.Date{}, false
	}
	s.cursor = next
	s.emitted++
	return current, true
}

// Err reports an error that stopped the sequence early.
func (s *Sequence) Err() error { return s.err }

// Generate collects a whole sequence.
func Generate(p SequenceParams) ([]ledger.Date, error) {
	seq, err := NewSequence(p)
	if err != nil {
		return nil, err
	}
	var dates []ledger.Date
	for d, ok := seq.Next(); ok; d, ok = seq.Next() {
		dates = append(dates, d)
	}
	return dates, seq.Err()
}

func clampCount(n int) int {
	if n <= 0 || n > MaxOccurrencesPerCall {
		return MaxOccurrencesPerCall
	}
	return n
}
