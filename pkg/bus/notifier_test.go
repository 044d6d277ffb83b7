package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/stor"
)

type recordingPublisher struct {
	broadcasts []string
	userEvents map[string][]string
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{userEvents: make(map[string][]string)}
}

func (p *recordingPublisher) Broadcast(event string, data any) {
	p.broadcasts = append(p.broadcasts, event)
}

func (p *recordingPublisher) BroadcastToUser(userUUID, event string, data any) {
	p.userEvents[userUUID] = append(p.userEvents[userUUID], event)
}

type fakeHistoryStor struct {
	entries []stor.HistoryEntry
	err     error
}

func (s *fakeHistoryStor) AddEntry(entry *stor.HistoryEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeHistoryStor) ListRecent(limit int) ([]stor.HistoryEntry, error) {
	return s.entries, nil
}

func TestNotifierRoutesTransferEventsToInitiator(t *testing.T) {
	pub := newRecordingPublisher()
	history := &fakeHistoryStor{}
	n := NewNotifier(pub, history)

	tr := &model.Transfer{
		ID:            "transfer-1",
		InitiatorUUID: "user-1",
		Flow:          model.TransferFlowAttended,
		Status:        model.TransferCompleted,
	}

	n.TransferCreated(tr)
	n.TransferAnswered(tr)
	n.TransferCompleted(tr)
	n.TransferEnded(tr)

	want := []string{"transfer_created", "transfer_answered", "transfer_completed", "transfer_ended"}
	assert.Equal(t, want, pub.userEvents["user-1"])
	assert.Equal(t, want, pub.broadcasts)

	require.Len(t, history.entries, 1)
	assert.Equal(t, "transfer", history.entries[0].Kind)
	assert.Equal(t, "transfer-1", history.entries[0].RecordID)
	assert.Equal(t, model.TransferCompleted, history.entries[0].Status)
}

func TestNotifierRecordsRelocateHistoryOnEnd(t *testing.T) {
	pub := newRecordingPublisher()
	history := &fakeHistoryStor{}
	n := NewNotifier(pub, history)

	r := &model.Relocate{ID: "relocate-1", UserUUID: "user-2", Status: model.RelocateEnded}

	n.RelocateInitiated(r)
	n.RelocateEnded(r)

	assert.Equal(t, []string{"relocate_initiated", "relocate_ended"}, pub.userEvents["user-2"])

	require.Len(t, history.entries, 1)
	assert.Equal(t, "relocate", history.entries[0].Kind)
	assert.Equal(t, "relocate-1", history.entries[0].RecordID)
}

func TestNotifierToleratesHistoryFailures(t *testing.T) {
	pub := newRecordingPublisher()
	history := &fakeHistoryStor{err: assert.AnError}
	n := NewNotifier(pub, history)

	tr := &model.Transfer{ID: "transfer-1", InitiatorUUID: "user-1", Status: model.TransferCancelled}
	n.TransferEnded(tr)

	assert.Equal(t, []string{"transfer_ended"}, pub.userEvents["user-1"])
}
