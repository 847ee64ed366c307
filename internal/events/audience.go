package events

// AudienceKind selects which sessions receive an event.
type AudienceKind int

const (
	// ToAll delivers to every live session.
	ToAll AudienceKind = iota
	// ToAllExceptSender skips every session owned by the sender.
	ToAllExceptSender
	// ToOnlySender delivers only to sessions owned by the sender.
	ToOnlySender
)

// Audience is an AudienceKind bound to the sending user.
type Audience struct {
	Kind   AudienceKind
	Sender int
}

// All targets every live session.
func All() Audience {
	return Audience{Kind: ToAll}
}

// AllExceptSender targets every session not owned by sender.
func AllExceptSender(sender int) Audience {
	return Audience{Kind: ToAllExceptSender, Sender: sender}
}

// OnlySender targets the sender's own sessions.
func OnlySender(sender int) Audience {
	return Audience{Kind: ToOnlySender, Sender: sender}
}

// Includes reports whether a session owned by userID is in the audience.
func (a Audience) Includes(userID int) bool {
	switch a.Kind {
	case ToAllExceptSender:
		return userID != a.Sender
	case ToOnlySender:
		return userID == a.Sender
	default:
		return true
	}
}

func (a Audience) String() string {
	switch a.Kind {
	case ToAllExceptSender:
		return "all_except_sender"
	case ToOnlySender:
		return "only_sender"
	default:
		return "all"
	}
}
