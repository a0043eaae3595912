package schema

// Event kinds emitted over the processing channel while augmentation runs.
// They are observational: dropping every one of them must not change the
// completion the client receives.
const (
	EventProcess = "process"
	EventError   = "error"
)

// DoneMarker separates augmentation progress frames from the model's token
// stream. Clients wait for it before rendering completion output.
const DoneMarker = "[RAG_DONE]"

// ProcessEvent is a progress notice surfaced to streaming clients while
// retrieval and summarization are still running.
type ProcessEvent struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func Progress(msg string) ProcessEvent {
	return ProcessEvent{Kind: EventProcess, Message: msg}
}

func ErrorEvent(msg string) ProcessEvent {
	return ProcessEvent{Kind: EventError, Message: msg}
}
