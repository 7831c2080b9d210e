package event

type Type string

const (
	TypeLoginSucceeded         Type = "auth.login.succeeded"
	TypeLoginFailed            Type = "auth.login.failed"
	TypeGoogleLoginSucceeded   Type = "auth.google.succeeded"
	TypeGoogleLoginFailed      Type = "auth.google.failed"
	TypeGoogleUserCreated      Type = "auth.google.user_created"
	TypeUserRegistered         Type = "auth.registered"
	TypeEmailVerified          Type = "auth.email_verified"
	TypePasswordResetRequested Type = "auth.password_reset.requested"
	TypePasswordResetCompleted Type = "auth.password_reset.completed"
	TypeOrderPlaced            Type = "order.placed"
	TypeUserChanged            Type = "admin.user_changed"
)

// Failed reports whether the event records a rejected attempt.
func (t Type) Failed() bool {
	return t == TypeLoginFailed || t == TypeGoogleLoginFailed
}

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	ActorIP   string `json:"actor_ip,omitempty"`
	Resource  string `json:"resource,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
