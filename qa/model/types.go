package model

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatStatus string

const (
	ChatStatusRunning ChatStatus = "running"
	ChatStatusPassed  ChatStatus = "passed"
	ChatStatusFailed  ChatStatus = "failed"
)

// IsTerminal reports whether no further mutation is allowed.
func (s ChatStatus) IsTerminal() bool {
	return s == ChatStatusPassed || s == ChatStatusFailed
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Rule is a declarative assertion evaluated against a field of the raw endpoint response.
type Rule struct {
	ID          string `json:"id"`
	Path        string `json:"path" validate:"required"`
	Condition   string `json:"condition" validate:"required"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

type Scenario struct {
	ID             string `json:"id,omitempty"`
	Scenario       string `json:"scenario" validate:"required"`
	ExpectedOutput string `json:"expectedOutput"`
}

// TestDefinition is everything one run needs. It is built once per run
// request and treated as read-only afterwards.
type TestDefinition struct {
	ID           string            `json:"id" validate:"required"`
	Name         string            `json:"name"`
	EndpointURL  string            `json:"endpoint" validate:"required,url"`
	Headers      map[string]string `json:"headers,omitempty"`
	InputFormat  map[string]any    `json:"inputFormat,omitempty"`
	OutputFormat map[string]any    `json:"outputFormat,omitempty"`
	Rules        []Rule            `json:"rules,omitempty" validate:"dive"`
	Scenarios    []Scenario        `json:"scenarios" validate:"required,min=1,dive"`
	PersonaIDs   []string          `json:"personaIds" validate:"required,min=1,dive,required"`
	OrgID        string            `json:"orgId,omitempty"`
}

// PairCount is the number of (scenario, persona) conversations the definition produces.
func (d *TestDefinition) PairCount() int {
	return len(d.Scenarios) * len(d.PersonaIDs)
}

type MessageMetrics struct {
	ResponseTimeMs  int64    `json:"responseTime"`
	ValidationScore *float64 `json:"validationScore,omitempty"`
}

type Message struct {
	ID          string         `json:"id"`
	ChatID      string         `json:"chatId"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Metrics     MessageMetrics `json:"metrics"`
	IsCorrect   *bool          `json:"isCorrect,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}

type ChatMetrics struct {
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	ResponseTimeMs []int64 `json:"responseTime"`
}

// Conversation is the transcript of one (scenario, persona) pair.
type Conversation struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Scenario         string            `json:"scenario"`
	ExpectedOutput   string            `json:"expectedOutput,omitempty"`
	Status           ChatStatus        `json:"status"`
	Messages         []Message         `json:"messages"`
	Metrics          ChatMetrics       `json:"metrics"`
	PersonaID        string            `json:"personaId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationResult *ValidationResult `json:"validationResult,omitempty"`
	Error            string            `json:"error,omitempty"`
}

type Verdict struct {
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

type ValidationMetrics struct {
	ResponseTimeMs int64 `json:"responseTime"`
}

type ValidationResult struct {
	PassedTest         bool              `json:"passedTest"`
	FormatValid        bool              `json:"formatValid"`
	ConditionMet       bool              `json:"conditionMet"`
	Explanation        string            `json:"explanation"`
	ConversationResult Verdict           `json:"conversationResult"`
	Metrics            ValidationMetrics `json:"metrics"`
}

type RunMetrics struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Chats     int `json:"chats"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

type ScenarioResult struct {
	ScenarioID     string `json:"scenarioId"`
	ResponseTimeMs int64  `json:"responseTime"`
}

// TestRun is the aggregate produced by one execution of a TestDefinition.
type TestRun struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Timestamp time.Time        `json:"timestamp"`
	Status    RunStatus        `json:"status"`
	Metrics   RunMetrics       `json:"metrics"`
	Chats     []Conversation   `json:"chats"`
	Results   []ScenarioResult `json:"results"`
	AgentID   string           `json:"agentId"`
	CreatedBy string           `json:"createdBy"`
}

// Tally recomputes passed, failed, correct and incorrect from the chats.
// Total is left untouched.
func (r *TestRun) Tally() {
	r.Metrics.Chats = len(r.Chats)
	r.Metrics.Passed, r.Metrics.Failed = 0, 0
	r.Metrics.Correct, r.Metrics.Incorrect = 0, 0
	for i := range r.Chats {
		switch r.Chats[i].Status {
		case ChatStatusPassed:
			r.Metrics.Passed++
		default:
			r.Metrics.Failed++
		}
		r.Metrics.Correct += r.Chats[i].Metrics.Correct
		r.Metrics.Incorrect += r.Chats[i].Metrics.Incorrect
	}
}

// Append adds msg to the transcript. Terminal conversations are immutable.
func (c *Conversation) Append(msg Message) error {
	if c.Status.IsTerminal() {
		return ErrConversationTerminal
	}
	msg.ChatID = c.ID
	c.Messages = append(c.Messages, msg)
	return nil
}

// Finish sets the terminal status once. errMsg is recorded for failed pairs.
func (c *Conversation) Finish(status ChatStatus, errMsg string) error {
	if c.Status.IsTerminal() {
		return ErrConversationTerminal
	}
	c.Status = status
	c.Error = errMsg
	return nil
}
