package transfer

import (
	"github.com/looplab/fsm"

	"github.com/openline-voip/calld/pkg/model"
)

// Triggers accepted by the transfer state machine. HTTP requests and engine
// events are both reduced to this set before touching a record.
const (
	TrigControlAcquired   = "control_acquired"
	TrigRecipientCalled   = "recipient_called"
	TrigRecipientAnswered = "recipient_answered"
	TrigInitiatorHangup   = "initiator_hangup"
	TrigTransferredHangup = "transferred_hangup"
	TrigRecipientHangup   = "recipient_hangup"
	TrigComplete          = "complete"
	TrigCancel            = "cancel"
)

// attendedTransitions is the edge set for flow=attended. An initiator hangup
// during ringback cancels; only an explicit complete (or the answered-state
// initiator hangup) completes.
var attendedTransitions = fsm.Events{
	{Name: TrigControlAcquired, Src: []string{model.TransferStarting}, Dst: model.TransferRingback},
	{Name: TrigRecipientAnswered, Src: []string{model.TransferRingback}, Dst: model.TransferAnswered},

	{Name: TrigInitiatorHangup, Src: []string{model.TransferRingback}, Dst: model.TransferCancelled},
	{Name: TrigInitiatorHangup, Src: []string{model.TransferAnswered}, Dst: model.TransferCompleted},

	{Name: TrigTransferredHangup, Src: []string{model.TransferRingback}, Dst: model.TransferCancelled},
	{Name: TrigTransferredHangup, Src: []string{model.TransferAnswered}, Dst: model.TransferAbandoned},

	{Name: TrigRecipientHangup, Src: []string{model.TransferRingback, model.TransferAnswered}, Dst: model.TransferCancelled},

	{Name: TrigComplete, Src: []string{model.TransferAnswered}, Dst: model.TransferCompleted},
	{Name: TrigCancel, Src: []string{model.TransferRingback, model.TransferAnswered}, Dst: model.TransferCancelled},
}

// blindTransitions is the edge set for flow=blind. The machine leaves
// ringback as soon as the recipient leg is under engine control, without an
// answered stop.
var blindTransitions = fsm.Events{
	{Name: TrigControlAcquired, Src: []string{model.TransferStarting}, Dst: model.TransferRingback},
	{Name: TrigRecipientCalled, Src: []string{model.TransferRingback}, Dst: model.TransferBlindTransferred},
	{Name: TrigComplete, Src: []string{model.TransferRingback}, Dst: model.TransferBlindTransferred},
	{Name: TrigInitiatorHangup, Src: []string{model.TransferRingback}, Dst: model.TransferBlindTransferred},

	{Name: TrigRecipientAnswered, Src: []string{model.TransferBlindTransferred}, Dst: model.TransferCompleted},

	{Name: TrigTransferredHangup, Src: []string{model.TransferRingback, model.TransferBlindTransferred}, Dst: model.TransferHungup},
	{Name: TrigRecipientHangup, Src: []string{model.TransferRingback, model.TransferBlindTransferred}, Dst: model.TransferHungup},

	{Name: TrigCancel, Src: []string{model.TransferRingback}, Dst: model.TransferCancelled},
}

// newStateMachine builds the transition validator for one transfer, seeded
// with its current persisted status. The machine object is transient; the
// store owns the durable state.
func newStateMachine(flow model.TransferFlow, current string) *fsm.FSM {
	if flow == model.TransferFlowBlind {
		return fsm.NewFSM(current, blindTransitions, nil)
	}

	return fsm.NewFSM(current, attendedTransitions, nil)
}
