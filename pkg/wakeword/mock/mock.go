// Package mock provides test doubles for the wakeword package interfaces.
//
// Use Engine to verify that scorers are created with the expected Config.
// Use Scorer to inject confidence values and inspect the feature windows
// that were submitted for scoring.
//
// Example:
//
//	sc := &mock.Scorer{Confidence: 0.93}
//	eng := &mock.Engine{Scorer: sc}
//	s, _ := eng.NewScorer(cfg, "hey_earshot")
package mock

import (
	"sync"

	"github.com/earshot/earshot/pkg/wakeword"
)

// NewScorerCall records a single invocation of Engine.NewScorer.
type NewScorerCall struct {
	// Cfg is the Config passed to NewScorer.
	Cfg wakeword.Config

	// Keyword is the keyword passed to NewScorer.
	Keyword string
}

// Engine is a mock implementation of wakeword.Engine.
type Engine struct {
	mu sync.Mutex

	// Scorer is returned by NewScorer. If nil, NewScorer returns a new
	// default Scorer.
	Scorer wakeword.Scorer

	// NewScorerErr, if non-nil, is returned as the error from NewScorer.
	NewScorerErr error

	// NewScorerCalls records every call to NewScorer in order.
	NewScorerCalls []NewScorerCall
}

// NewScorer records the call and returns Scorer, NewScorerErr.
func (e *Engine) NewScorer(cfg wakeword.Config, keyword string) (wakeword.Scorer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewScorerCalls = append(e.NewScorerCalls, NewScorerCall{Cfg: cfg, Keyword: keyword})
	if e.NewScorerErr != nil {
		return nil, e.NewScorerErr
	}
	if e.Scorer != nil {
		return e.Scorer, nil
	}
	return &Scorer{}, nil
}

// Scorer is a mock implementation of wakeword.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Confidence is returned by every Score call when Confidences is empty.
	Confidence float64

	// Confidences, when non-empty, are returned by successive Score calls in
	// order; once exhausted, Confidence is returned.
	Confidences []float64

	// ScoreErr, if non-nil, is returned as the error from Score.
	ScoreErr error

	// ScoreCalls counts Score invocations.
	ScoreCalls int

	// Windows records the feature windows submitted to Score.
	Windows [][][]float64

	// ResetCalls counts Reset invocations.
	ResetCalls int

	// Closed reports whether Close was called.
	Closed bool
}

// Score records the window and returns the next configured confidence.
func (s *Scorer) Score(features [][]float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.ScoreCalls
	s.ScoreCalls++
	s.Windows = append(s.Windows, features)
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if call < len(s.Confidences) {
		return s.Confidences[call], nil
	}
	return s.Confidence, nil
}

// Reset records the call.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

// Close marks the scorer closed. Safe to call more than once.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
