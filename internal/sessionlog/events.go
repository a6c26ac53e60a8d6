package sessionlog

// EventType is the closed set of session log event types from spec §3.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventSessionEnd        EventType = "session_end"
	EventCommandReceived   EventType = "command_received"
	EventCommandExecuted   EventType = "command_executed"
	EventCommandFailed     EventType = "command_failed"
	EventNavigation        EventType = "navigation"
	EventInteraction       EventType = "interaction"
	EventExtraction        EventType = "extraction"
	EventWaitCondition     EventType = "wait_condition"
	EventError             EventType = "error"
	EventSecurityViolation EventType = "security_violation"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
)

// Event is one LogEvent, spec §3. Timestamp and the in-memory stats map are
// populated by Logger.Emit — callers don't stamp these themselves.
type Event struct {
	Timestamp       float64
	Type            EventType
	SessionID       string
	CommandID       string
	ClientAddr      string
	Message         string
	Data            map[string]interface{}
	ExecutionTimeMs *int64
	Success         bool
	ErrorCode       string
}
