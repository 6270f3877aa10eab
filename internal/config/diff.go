package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; changes to the
// audio format, source, or buffer sizes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SteeringChanged bool
	NewSteeringDeg  float64

	// KeywordChanges lists per-keyword differences. Added and removed
	// keywords cannot be applied live and are reported so the caller can
	// log a restart hint; threshold changes are applied in place.
	KeywordChanges []KeywordDiff
}

// KeywordDiff describes what changed for a single wake keyword.
type KeywordDiff struct {
	Keyword          string
	ThresholdChanged bool
	NewThreshold     float64
	Added            bool
	Removed          bool
}

// HasChanges reports whether the diff carries anything to apply or report.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.SteeringChanged || len(d.KeywordChanges) > 0
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to observe without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Beam.SteeringDeg != new.Beam.SteeringDeg {
		d.SteeringChanged = true
		d.NewSteeringDeg = new.Beam.SteeringDeg
	}

	oldKeywords := make(map[string]KeywordConfig, len(old.Wake.Keywords))
	for _, kw := range old.Wake.Keywords {
		oldKeywords[kw.Keyword] = kw
	}
	newKeywords := make(map[string]KeywordConfig, len(new.Wake.Keywords))
	for _, kw := range new.Wake.Keywords {
		newKeywords[kw.Keyword] = kw
	}

	for _, kw := range new.Wake.Keywords {
		prev, ok := oldKeywords[kw.Keyword]
		switch {
		case !ok:
			d.KeywordChanges = append(d.KeywordChanges, KeywordDiff{Keyword: kw.Keyword, Added: true})
		case prev.Threshold != kw.Threshold:
			d.KeywordChanges = append(d.KeywordChanges, KeywordDiff{
				Keyword:          kw.Keyword,
				ThresholdChanged: true,
				NewThreshold:     kw.Threshold,
			})
		}
	}
	for _, kw := range old.Wake.Keywords {
		if _, ok := newKeywords[kw.Keyword]; !ok {
			d.KeywordChanges = append(d.KeywordChanges, KeywordDiff{Keyword: kw.Keyword, Removed: true})
		}
	}

	return d
}
