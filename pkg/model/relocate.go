package model

// Relocate statuses.
const (
	RelocateReady    = "ready"
	RelocateRinging  = "ringing"
	RelocateProgress = "progress"
	RelocateEnded    = "ended"
)

// Relocate completion modes. When Completions is empty the relocate
// completes as soon as the recipient leg answers.
const (
	RelocateCompletionAPI = "api"
)

// DestinationKind selects how the recipient leg of a relocate is reached.
type DestinationKind string

const (
	DestinationLine   DestinationKind = "line"
	DestinationMobile DestinationKind = "mobile"
)

// Destination describes the configured device a call is relocated to. A
// line destination dials an endpoint interface directly; a mobile
// destination dials a number through a dialplan context.
type Destination struct {
	Kind         DestinationKind `json:"kind"`
	LineEndpoint string          `json:"line_endpoint,omitempty"`
	Number       string          `json:"number,omitempty"`
	Context      string          `json:"context,omitempty"`
}

// Relocate is the durable record of one in-flight relocate. Unlike a
// transfer its ID is an independently generated UUID.
type Relocate struct {
	ID            string      `json:"id"`
	UserUUID      string      `json:"user_uuid"`
	RelocatedCall string      `json:"relocated_call"`
	InitiatorCall string      `json:"initiator_call"`
	RecipientCall string      `json:"recipient_call,omitempty"`
	Status        string      `json:"status"`
	Completions   []string    `json:"completions,omitempty"`
	Destination   Destination `json:"destination"`
}

func (r *Relocate) Terminal() bool {
	return r.Status == RelocateEnded
}

// AutoComplete reports whether the relocate finishes on its own when the
// recipient answers, without waiting for an explicit API completion.
func (r *Relocate) AutoComplete() bool {
	for _, c := range r.Completions {
		if c == RelocateCompletionAPI {
			return false
		}
	}

	return true
}

// RoleOf returns the role a channel plays in this relocate, if any.
func (r *Relocate) RoleOf(channelID string) (TransferRole, bool) {
	switch channelID {
	case "":
		return "", false
	case r.RelocatedCall:
		return RoleTransferred, true
	case r.InitiatorCall:
		return RoleInitiator, true
	case r.RecipientCall:
		return RoleRecipient, true
	}

	return "", false
}
