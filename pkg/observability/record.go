package observability

import "time"

// RecordCompletion records one finished completion call.
func RecordCompletion(mode, model, outcome string, elapsed time.Duration) {
	CompletionRequestsTotal.WithLabelValues(mode, model, outcome).Inc()
	CompletionLatency.WithLabelValues(mode, model).Observe(elapsed.Seconds())
}

// RecordTokens adds prompt and completion token counts for model.
func RecordTokens(model string, prompt, completion int) {
	if prompt > 0 {
		CompletionTokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		CompletionTokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// StreamOpened increments the active stream gauge and returns the func that
// decrements it.
func StreamOpened() (closed func()) {
	StreamingConnections.Inc()
	return StreamingConnections.Dec
}
