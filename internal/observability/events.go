package observability

// EventEnvelope wraps out-of-band service events (connection lifecycle) that
// ride the broker next to the domain event stream. Domain events themselves
// go through handlers.EventPublisher, not this envelope.
type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// BuildHeaders assembles message headers correlating a broker event with the
// originating request and trace. Empty values are left out.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
