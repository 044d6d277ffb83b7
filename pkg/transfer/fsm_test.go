package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openline-voip/calld/pkg/model"
)

var allTriggers = []string{
	TrigControlAcquired,
	TrigRecipientCalled,
	TrigRecipientAnswered,
	TrigInitiatorHangup,
	TrigTransferredHangup,
	TrigRecipientHangup,
	TrigComplete,
	TrigCancel,
}

func allowed(flow model.TransferFlow, state string) map[string]bool {
	out := make(map[string]bool)
	f := newStateMachine(flow, state)
	for _, trig := range allTriggers {
		if f.Can(trig) {
			out[trig] = true
		}
	}

	return out
}

func TestAttendedTransitionTable(t *testing.T) {
	assert.Equal(t,
		map[string]bool{TrigControlAcquired: true},
		allowed(model.TransferFlowAttended, model.TransferStarting))

	assert.Equal(t,
		map[string]bool{
			TrigRecipientAnswered: true,
			TrigInitiatorHangup:   true,
			TrigTransferredHangup: true,
			TrigRecipientHangup:   true,
			TrigCancel:            true,
		},
		allowed(model.TransferFlowAttended, model.TransferRingback))

	assert.Equal(t,
		map[string]bool{
			TrigInitiatorHangup:   true,
			TrigTransferredHangup: true,
			TrigRecipientHangup:   true,
			TrigComplete:          true,
			TrigCancel:            true,
		},
		allowed(model.TransferFlowAttended, model.TransferAnswered))
}

func TestBlindTransitionTable(t *testing.T) {
	assert.Equal(t,
		map[string]bool{TrigControlAcquired: true},
		allowed(model.TransferFlowBlind, model.TransferStarting))

	assert.Equal(t,
		map[string]bool{
			TrigRecipientCalled:   true,
			TrigComplete:          true,
			TrigInitiatorHangup:   true,
			TrigTransferredHangup: true,
			TrigRecipientHangup:   true,
			TrigCancel:            true,
		},
		allowed(model.TransferFlowBlind, model.TransferRingback))

	assert.Equal(t,
		map[string]bool{
			TrigRecipientAnswered: true,
			TrigTransferredHangup: true,
			TrigRecipientHangup:   true,
		},
		allowed(model.TransferFlowBlind, model.TransferBlindTransferred))
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	terminals := []string{
		model.TransferCompleted,
		model.TransferCancelled,
		model.TransferAbandoned,
		model.TransferHungup,
	}

	for _, flow := range []model.TransferFlow{model.TransferFlowAttended, model.TransferFlowBlind} {
		for _, state := range terminals {
			assert.Empty(t, allowed(flow, state), "flow=%s state=%s", flow, state)
		}
	}
}

func TestAttendedInitiatorHangupInRingbackCancels(t *testing.T) {
	// An attended transfer must never complete just because the initiator
	// hung up before the recipient answered.
	f := newStateMachine(model.TransferFlowAttended, model.TransferRingback)
	assert.Equal(t, model.TransferCancelled, advance(f, TrigInitiatorHangup))
}

func TestBlindInitiatorHangupInRingbackHandsOff(t *testing.T) {
	f := newStateMachine(model.TransferFlowBlind, model.TransferRingback)
	assert.Equal(t, model.TransferBlindTransferred, advance(f, TrigInitiatorHangup))

	assert.Equal(t, model.TransferCompleted, advance(f, TrigRecipientAnswered))
}
