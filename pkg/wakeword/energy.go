package wakeword

import "fmt"

// EnergyEngine is a deterministic reference backend that scores windows by
// their overall log energy (the c0 cepstral coefficient). It detects "loud
// speech-like audio" rather than any actual keyword, which makes it useful
// for end-to-end pipeline bring-up and integration tests where a real
// acoustic model is unavailable. It must not be used in production.
type EnergyEngine struct {
	// Floor and Ceil bound the c0 range mapped onto confidence 0.0–1.0.
	// Zero values select defaults calibrated for the pipeline's orthonormal
	// DCT-II cepstra: Floor -110 (digital silence), Ceil -20 (loud speech).
	Floor float64
	Ceil  float64
}

// NewScorer returns an energy scorer for the keyword. The keyword itself is
// ignored beyond labelling — every keyword scores identically.
func (e *EnergyEngine) NewScorer(cfg Config, keyword string) (Scorer, error) {
	if cfg.Coefficients < 1 {
		return nil, fmt.Errorf("wakeword: energy scorer needs at least 1 cepstral coefficient, got %d", cfg.Coefficients)
	}
	floor, ceil := e.Floor, e.Ceil
	if floor == 0 && ceil == 0 {
		floor, ceil = -110, -20
	}
	if ceil <= floor {
		return nil, fmt.Errorf("wakeword: energy scorer ceil %v must exceed floor %v", ceil, floor)
	}
	return &energyScorer{floor: floor, ceil: ceil}, nil
}

type energyScorer struct {
	floor float64
	ceil  float64
}

// Score maps the mean c0 of the window's most recent quarter onto [0, 1].
// Only the tail is considered so that a keyword spoken at the end of an
// otherwise silent window still scores high.
func (s *energyScorer) Score(features [][]float64) (float64, error) {
	if len(features) == 0 {
		return 0, fmt.Errorf("wakeword: empty feature window")
	}
	tail := features[len(features)-(len(features)+3)/4:]
	var sum float64
	for _, frame := range tail {
		if len(frame) == 0 {
			return 0, fmt.Errorf("wakeword: empty feature frame")
		}
		sum += frame[0]
	}
	mean := sum / float64(len(tail))

	conf := (mean - s.floor) / (s.ceil - s.floor)
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return conf, nil
}

func (s *energyScorer) Reset() {}

func (s *energyScorer) Close() error { return nil }
