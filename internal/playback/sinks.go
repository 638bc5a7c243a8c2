package playback

// MultiDriftSink fans a sample out to several sinks. Nil entries are skipped.
type MultiDriftSink []DriftSink

// RecordDrift forwards s to every sink in order.
func (m MultiDriftSink) RecordDrift(s DriftSample) {
	for _, sink := range m {
		if sink != nil {
			sink.RecordDrift(s)
		}
	}
}

// DriftSinkFunc adapts a function to DriftSink.
type DriftSinkFunc func(DriftSample)

// RecordDrift calls f(s).
func (f DriftSinkFunc) RecordDrift(s DriftSample) {
	f(s)
}
