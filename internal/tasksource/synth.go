package tasksource

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"agentscore/internal/clock"
)

// FirstSyntheticID is the id of the first task synthesized on a fresh install.
const FirstSyntheticID = 1000

// DefaultPayout is the payout of a synthesized task.
const DefaultPayout = "0.50"

var descriptions = []string{
	"Analyze market sentiment from Reddit posts",
	"Classify sentiment in customer reviews",
	"Extract entities from news articles",
	"Validate data quality in CSV file",
	"Transcribe audio recording segment",
	"Label training images for ML model",
	"Translate text from EN to ES",
	"Summarize research paper abstract",
	"Check code for security vulnerabilities",
	"Generate alt text for image",
}

// Descriptions returns the catalog synthesized tasks are drawn from.
func Descriptions() []string {
	return append([]string(nil), descriptions...)
}

// Synthesizer produces demo tasks with monotonically increasing ids.
type Synthesizer struct {
	payout string
	clock  clock.Clock
	pick   func(n int) int

	mu     sync.Mutex
	nextID int64
}

// SynthOption customizes a Synthesizer.
type SynthOption func(*Synthesizer)

// WithPicker replaces the random catalog picker; pick(n) must return [0,n).
func WithPicker(pick func(n int) int) SynthOption {
	return func(s *Synthesizer) { s.pick = pick }
}

// WithClock sets the clock used for CreatedAt.
func WithClock(c clock.Clock) SynthOption {
	return func(s *Synthesizer) { s.clock = c }
}

// NewSynthesizer returns a synthesizer whose next id is nextID (values below
// FirstSyntheticID are raised to it) and whose tasks pay payout.
func NewSynthesizer(nextID int64, payout string, opts ...SynthOption) *Synthesizer {
	if nextID < FirstSyntheticID {
		nextID = FirstSyntheticID
	}
	if payout == "" {
		payout = DefaultPayout
	}
	s := &Synthesizer{
		payout: payout,
		clock:  clock.Real(),
		pick:   rand.IntN,
		nextID: nextID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	return s
}

// Synthesize returns a fresh task from the catalog.
func (s *Synthesizer) Synthesize() Task {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	idStr := strconv.FormatInt(id, 10)
	return Task{
		ID:           idStr,
		Title:        "Task #" + idStr,
		Description:  descriptions[s.pick(len(descriptions))],
		Payout:       s.payout,
		RequiredTier: DefaultTier,
		CreatedAt:    s.clock.Now().UTC().Truncate(time.Millisecond),
		Origin:       OriginSynthetic,
		Status:       StatusDiscovered,
	}
}

// NextID returns the id the next synthesized task will get.
func (s *Synthesizer) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}
