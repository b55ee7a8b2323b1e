package domain

import "net/http"

// Event is one progress notification relayed from a runner to a stream
type Event struct {
	State   string `json:"state"`
	Message string `json:"message"`
	IsDone  bool   `json:"is_done"`
	Code    int    `json:"code"`
}

// Event states that are not lifecycle hooks of the pipeline
const (
	EventPreparing   = "preparing"
	EventProvider    = "provider_ready"
	EventResearching = "researching"
	EventResearched  = "research_end"
	EventWriting     = "writing"
	EventWritten     = "writing_end"
	EventSaving      = "saving"
	EventCompleted   = "completed"
	EventFailed      = "failed"
	EventInterrupted = "interrupted"
	EventError       = "error"
)

// ProgressEvent builds a non-terminal 200 event
func ProgressEvent(state, message string) Event {
	return Event{State: state, Message: message, Code: http.StatusOK}
}

// FailureEvent builds a failure event carrying code
func FailureEvent(state, message string, code int) Event {
	return Event{State: state, Message: message, Code: code}
}

// CompletedEvent builds the single success terminal event
func CompletedEvent(message string) Event {
	return Event{State: EventCompleted, Message: message, IsDone: true, Code: http.StatusOK}
}

// Failed reports whether the event carries a failure code
func (e Event) Failed() bool {
	return e.Code >= http.StatusBadRequest
}
