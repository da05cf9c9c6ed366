package model

type EventType string

const (
	EventRunCreated   EventType = "run_created"
	EventMessage      EventType = "message"
	EventValidation   EventType = "validation"
	EventChatComplete EventType = "chat_complete"
	EventError        EventType = "error"
	EventComplete     EventType = "complete"
)

// Event is one record of the progress feed. Only the fields relevant to
// Type are set.
type Event struct {
	Type         EventType         `json:"type"`
	RunID        string            `json:"runId,omitempty"`
	Name         string            `json:"name,omitempty"`
	AgentID      string            `json:"agentId,omitempty"`
	CreatedBy    string            `json:"createdBy,omitempty"`
	PersonaID    string            `json:"personaId,omitempty"`
	ChatID       string            `json:"chatId,omitempty"`
	Message      *Message          `json:"message,omitempty"`
	Result       *ValidationResult `json:"result,omitempty"`
	Success      *bool             `json:"success,omitempty"`
	Conversation *Conversation     `json:"conversation,omitempty"`
	Error        string            `json:"error,omitempty"`
	TestID       string            `json:"testId,omitempty"`
}

func RunCreatedEvent(run *TestRun) Event {
	return Event{
		Type:      EventRunCreated,
		RunID:     run.ID,
		Name:      run.Name,
		AgentID:   run.AgentID,
		CreatedBy: run.CreatedBy,
	}
}

func MessageEvent(personaID string, msg Message) Event {
	return Event{Type: EventMessage, PersonaID: personaID, Message: &msg}
}

func ValidationEvent(personaID, chatID string, result ValidationResult) Event {
	return Event{Type: EventValidation, PersonaID: personaID, ChatID: chatID, Result: &result}
}

func ChatCompleteEvent(chatID string, success bool) Event {
	return Event{Type: EventChatComplete, ChatID: chatID, Success: &success}
}

func ErrorEvent(personaID, chatID string, err error) Event {
	msg := "Unknown error occurred"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Event{Type: EventError, PersonaID: personaID, ChatID: chatID, Error: msg}
}

func ConversationCompleteEvent(conv Conversation) Event {
	return Event{Type: EventComplete, Conversation: &conv}
}

func RunCompleteEvent(testID string) Event {
	return Event{Type: EventComplete, TestID: testID}
}

// IsRunTerminal reports whether e ends a run stream.
func (e Event) IsRunTerminal() bool {
	return e.Type == EventComplete && e.Conversation == nil
}
