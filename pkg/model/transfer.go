package model

// TransferFlow selects whether a transfer waits for the recipient to answer
// before completing (attended) or hands the call off immediately (blind).
type TransferFlow string

const (
	TransferFlowAttended TransferFlow = "attended"
	TransferFlowBlind    TransferFlow = "blind"
)

// Transfer statuses. The terminal statuses never appear in the persisted
// store; a record is removed the moment it reaches one.
const (
	TransferStarting         = "starting"
	TransferRingback         = "ringback"
	TransferAnswered         = "answered"
	TransferBlindTransferred = "blind_transferred"

	TransferCompleted = "completed"
	TransferCancelled = "cancelled"
	TransferAbandoned = "abandoned"
	TransferHungup    = "hungup"
)

// TransferRole identifies which part a call leg plays in a transfer.
type TransferRole string

const (
	RoleTransferred TransferRole = "transferred"
	RoleInitiator   TransferRole = "initiator"
	RoleRecipient   TransferRole = "recipient"
)

// Transfer is the durable record of one in-flight transfer. The ID doubles
// as the ID of the mixing bridge created to hold the transferred and
// initiator legs.
type Transfer struct {
	ID              string       `json:"id"`
	InitiatorUUID   string       `json:"initiator_uuid,omitempty"`
	TransferredCall string       `json:"transferred_call"`
	InitiatorCall   string       `json:"initiator_call"`
	RecipientCall   string       `json:"recipient_call,omitempty"`
	Status          string       `json:"status"`
	Flow            TransferFlow `json:"flow"`

	// Destination and originate parameters, kept on the record so a
	// transfer still in starting state survives a calld restart.
	Context   string            `json:"context"`
	Exten     string            `json:"exten"`
	Variables map[string]string `json:"variables,omitempty"`
	Timeout   int               `json:"timeout,omitempty"`
}

// Terminal reports whether the transfer has reached an end state.
func (t *Transfer) Terminal() bool {
	switch t.Status {
	case TransferCompleted, TransferCancelled, TransferAbandoned, TransferHungup:
		return true
	}

	return false
}

// RoleOf returns the role a channel plays in this transfer, if any.
func (t *Transfer) RoleOf(channelID string) (TransferRole, bool) {
	switch channelID {
	case "":
		return "", false
	case t.TransferredCall:
		return RoleTransferred, true
	case t.InitiatorCall:
		return RoleInitiator, true
	case t.RecipientCall:
		return RoleRecipient, true
	}

	return "", false
}
