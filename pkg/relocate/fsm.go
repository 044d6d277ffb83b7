package relocate

import (
	"github.com/looplab/fsm"

	"github.com/openline-voip/calld/pkg/model"
)

// Triggers accepted by the relocate state machine. Narrower than the
// transfer set: relocates have no blind flow.
const (
	TrigStarted         = "started"
	TrigAnswered        = "answered"
	TrigComplete        = "complete"
	TrigRelocatedHangup = "relocated_hangup"
	TrigRecipientHangup = "recipient_hangup"
	TrigCancel          = "cancel"
)

var transitions = fsm.Events{
	{Name: TrigStarted, Src: []string{model.RelocateReady}, Dst: model.RelocateRinging},
	{Name: TrigAnswered, Src: []string{model.RelocateRinging}, Dst: model.RelocateProgress},
	{Name: TrigComplete, Src: []string{model.RelocateProgress}, Dst: model.RelocateEnded},

	{Name: TrigRelocatedHangup, Src: []string{model.RelocateRinging, model.RelocateProgress}, Dst: model.RelocateEnded},
	{Name: TrigRecipientHangup, Src: []string{model.RelocateRinging, model.RelocateProgress}, Dst: model.RelocateEnded},
	{Name: TrigCancel, Src: []string{model.RelocateRinging, model.RelocateProgress}, Dst: model.RelocateEnded},
}

func newStateMachine(current string) *fsm.FSM {
	return fsm.NewFSM(current, transitions, nil)
}
