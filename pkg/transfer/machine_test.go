package transfer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/lock"
	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/stor"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, name)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]string, len(n.events))
	copy(out, n.events)

	return out
}

func (n *recordingNotifier) TransferCreated(*model.Transfer)   { n.record("transfer_created") }
func (n *recordingNotifier) TransferAnswered(*model.Transfer)  { n.record("transfer_answered") }
func (n *recordingNotifier) TransferCancelled(*model.Transfer) { n.record("transfer_cancelled") }
func (n *recordingNotifier) TransferCompleted(*model.Transfer) { n.record("transfer_completed") }
func (n *recordingNotifier) TransferAbandoned(*model.Transfer) { n.record("transfer_abandoned") }
func (n *recordingNotifier) TransferEnded(*model.Transfer)     { n.record("transfer_ended") }

type machineFixture struct {
	machine      *Machine
	engine       *engine.MockClient
	admin        *engine.MockAdminClient
	stor         *stor.InMemoryTransferStor
	locker       *lock.OpLocker
	hangupLocker *lock.OpLocker
	notifier     *recordingNotifier
}

func newFixture() *machineFixture {
	f := &machineFixture{
		engine:       engine.NewMockClient(),
		admin:        engine.NewMockAdminClient(),
		stor:         stor.NewInMemoryTransferStor(),
		locker:       lock.NewOpLocker(),
		hangupLocker: lock.NewOpLocker(),
		notifier:     &recordingNotifier{},
	}

	f.machine = NewMachine(MachineOpts{
		Engine:       f.engine,
		Admin:        f.admin,
		Stor:         f.stor,
		Locker:       f.locker,
		HangupLocker: f.hangupLocker,
		Notifier:     f.notifier,
		App:          "calld",
		MOHClass:     "default",
	})

	return f
}

func (f *machineFixture) createRequest(flow model.TransferFlow) CreateRequest {
	f.engine.AddChannel("chan-transferred", true)
	f.engine.AddChannel("chan-initiator", true)
	f.admin.AddExtension("internal", "1001")
	f.engine.SetOriginateID("chan-recipient")

	return CreateRequest{
		TransferredCall: "chan-transferred",
		InitiatorCall:   "chan-initiator",
		Context:         "internal",
		Exten:           "1001",
		Flow:            flow,
		Timeout:         15,
		InitiatorUUID:   "user-1",
	}
}

func TestAttendedTransferHappyPath(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowAttended))
	require.NoError(t, err)
	assert.Equal(t, model.TransferRingback, tr.Status)
	assert.Equal(t, "chan-recipient", tr.RecipientCall)
	assert.True(t, f.locker.Held("chan-initiator"))
	assert.True(t, f.engine.OnMOH("chan-transferred"))
	assert.ElementsMatch(t, []string{"chan-transferred", "chan-initiator"}, f.engine.BridgeChannels(tr.ID))

	originated := f.engine.Originated()
	require.Len(t, originated, 1)
	assert.Equal(t, "1001@internal", originated[0].Endpoint)
	assert.Equal(t, []string{"transfer", "recipient_called", tr.ID}, originated[0].AppArgs)
	assert.Equal(t, 15, originated[0].Timeout)

	f.machine.RecipientAnswered(tr.ID)
	got, err := f.stor.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferAnswered, got.Status)
	assert.Contains(t, f.engine.BridgeChannels(tr.ID), "chan-recipient")

	// Initiator hangs up: the transfer completes, transferred and recipient
	// end up talking in the transfer bridge.
	f.machine.ChannelHungUp(tr.ID, model.RoleInitiator)

	_, err = f.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)
	assert.False(t, f.locker.Held("chan-initiator"))
	assert.False(t, f.engine.OnMOH("chan-transferred"))
	assert.Contains(t, f.engine.BridgeChannels(tr.ID), "chan-transferred")
	assert.Contains(t, f.engine.BridgeChannels(tr.ID), "chan-recipient")

	assert.Equal(t,
		[]string{"transfer_created", "transfer_answered", "transfer_completed", "transfer_ended"},
		f.notifier.Events())
}

func TestBlindTransferRecipientNeverAnswers(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowBlind))
	require.NoError(t, err)
	assert.Equal(t, model.TransferRingback, tr.Status)

	// Recipient leg enters the app: immediate hand-off, no answered stop.
	f.machine.RecipientCalled(tr.ID)
	got, err := f.stor.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferBlindTransferred, got.Status)
	assert.Contains(t, f.engine.Hungup(), "chan-initiator")
	assert.True(t, f.hangupLocker.Held("chan-transferred"))

	// Recipient hangs up instead of answering.
	f.machine.ChannelHungUp(tr.ID, model.RoleRecipient)

	_, err = f.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)
	assert.Contains(t, f.engine.Hungup(), "chan-transferred")
	assert.False(t, f.locker.Held("chan-initiator"))
	assert.False(t, f.hangupLocker.Held("chan-transferred"))

	assert.Equal(t, []string{"transfer_created", "transfer_ended"}, f.notifier.Events())
}

func TestBlindTransferCompletedOnAnswer(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowBlind))
	require.NoError(t, err)

	f.machine.RecipientCalled(tr.ID)
	f.machine.RecipientAnswered(tr.ID)

	_, err = f.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)
	assert.Contains(t, f.engine.BridgeChannels(tr.ID), "chan-transferred")
	assert.Contains(t, f.engine.BridgeChannels(tr.ID), "chan-recipient")
	assert.False(t, f.engine.OnMOH("chan-transferred"))

	assert.Equal(t,
		[]string{"transfer_created", "transfer_completed", "transfer_ended"},
		f.notifier.Events())
}

func TestRingbackTimeoutCancels(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowAttended))
	require.NoError(t, err)

	// Ring timeout expiry arrives as an ordinary destroy of the recipient leg.
	f.machine.ChannelHungUp(tr.ID, model.RoleRecipient)

	_, err = f.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)
	assert.False(t, f.locker.Held("chan-initiator"))

	// Transferred and initiator are talking again in the transfer bridge.
	assert.False(t, f.engine.OnMOH("chan-transferred"))
	assert.ElementsMatch(t, []string{"chan-transferred", "chan-initiator"}, f.engine.BridgeChannels(tr.ID))

	assert.Equal(t,
		[]string{"transfer_created", "transfer_cancelled", "transfer_ended"},
		f.notifier.Events())
}

func TestTransferredHangupWhileAnsweredAbandons(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowAttended))
	require.NoError(t, err)
	f.machine.RecipientAnswered(tr.ID)

	f.machine.ChannelHungUp(tr.ID, model.RoleTransferred)

	_, err = f.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)
	// Initiator and recipient stay bridged.
	assert.NotContains(t, f.engine.Hungup(), "chan-initiator")
	assert.NotContains(t, f.engine.Hungup(), "chan-recipient")

	assert.Equal(t,
		[]string{"transfer_created", "transfer_answered", "transfer_abandoned", "transfer_ended"},
		f.notifier.Events())
}

func TestConcurrentCreateExactlyOneWins(t *testing.T) {
	f := newFixture()
	req := f.createRequest(model.TransferFlowAttended)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		oks     int
		dupes   int
		failing []error
	)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.machine.Create(req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				oks++
			case err == ErrAlreadyStarted:
				dupes++
			default:
				failing = append(failing, err)
			}
		}()
	}

	wg.Wait()
	assert.Empty(t, failing)
	assert.Equal(t, 1, oks)
	assert.Equal(t, 1, dupes)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()

	t.Run("MissingTransferredCall", func(t *testing.T) {
		f.admin.AddExtension("internal", "1001")
		_, err := f.machine.Create(CreateRequest{
			TransferredCall: "nope",
			InitiatorCall:   "also-nope",
			Context:         "internal",
			Exten:           "1001",
		})
		var creationErr *CreationError
		require.ErrorAs(t, err, &creationErr)
		assert.False(t, f.locker.Held("also-nope"))
	})

	t.Run("MissingExtension", func(t *testing.T) {
		f.engine.AddChannel("a", true)
		f.engine.AddChannel("b", true)
		_, err := f.machine.Create(CreateRequest{
			TransferredCall: "a",
			InitiatorCall:   "b",
			Context:         "internal",
			Exten:           "9999",
		})
		var creationErr *CreationError
		require.ErrorAs(t, err, &creationErr)
	})

	t.Run("InvalidFlow", func(t *testing.T) {
		_, err := f.machine.Create(CreateRequest{Flow: "sideways"})
		var creationErr *CreationError
		require.ErrorAs(t, err, &creationErr)
	})

	t.Run("EngineUnavailable", func(t *testing.T) {
		f.engine.SetError(engine.ErrEngineUnavailable)
		defer f.engine.SetError(nil)

		_, err := f.machine.Create(CreateRequest{
			TransferredCall: "a",
			InitiatorCall:   "b",
			Context:         "internal",
			Exten:           "1001",
		})
		assert.ErrorIs(t, err, engine.ErrEngineUnavailable)
		assert.False(t, f.locker.Held("b"))
	})
}

func TestCompleteWrongState(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowAttended))
	require.NoError(t, err)

	// Still in ringback: an attended transfer cannot be completed yet.
	err = f.machine.Complete(tr.ID)
	var completionErr *CompletionError
	require.ErrorAs(t, err, &completionErr)

	got, err := f.stor.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferRingback, got.Status)

	assert.ErrorIs(t, f.machine.Complete("no-such-id"), ErrNoSuchTransfer)
}

func TestStartingPathRedirectsLegsIntoApp(t *testing.T) {
	f := newFixture()

	transferred := f.engine.AddChannel("chan-transferred", false)
	initiator := f.engine.AddChannel("chan-initiator", false)
	f.admin.AddExtension("internal", "1001")

	tr, err := f.machine.Create(CreateRequest{
		TransferredCall: "chan-transferred",
		InitiatorCall:   "chan-initiator",
		Context:         "internal",
		Exten:           "1001",
		InitiatorUUID:   "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransferStarting, tr.Status)
	assert.ElementsMatch(t, []string{"chan-transferred", "chan-initiator"}, f.admin.Redirected())

	// First leg joins; the machine waits for the other one.
	transferred.InApp = true
	f.machine.LegJoined(tr.ID, "chan-transferred")
	got, err := f.stor.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferStarting, got.Status)

	f.engine.SetOriginateID("chan-recipient")
	initiator.InApp = true
	f.machine.LegJoined(tr.ID, "chan-initiator")

	got, err = f.stor.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferRingback, got.Status)
	assert.Equal(t, "chan-recipient", got.RecipientCall)
}

func TestRestartRecovery(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowAttended))
	require.NoError(t, err)
	f.machine.RecipientAnswered(tr.ID)

	// A new process: fresh locks and machine, same store and engine.
	restarted := &machineFixture{
		engine:       f.engine,
		admin:        f.admin,
		stor:         f.stor,
		locker:       lock.NewOpLocker(),
		hangupLocker: lock.NewOpLocker(),
		notifier:     &recordingNotifier{},
	}
	restarted.machine = NewMachine(MachineOpts{
		Engine:       restarted.engine,
		Admin:        restarted.admin,
		Stor:         restarted.stor,
		Locker:       restarted.locker,
		HangupLocker: restarted.hangupLocker,
		Notifier:     restarted.notifier,
		App:          "calld",
		MOHClass:     "default",
	})

	require.NoError(t, restarted.machine.RecoverLocks())

	// The record survived and the lock is re-held: a duplicate create fails.
	got, err := restarted.machine.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferAnswered, got.Status)
	assert.True(t, restarted.locker.Held("chan-initiator"))

	// Completing after the restart works end to end.
	require.NoError(t, restarted.machine.Complete(tr.ID))
	_, err = restarted.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)
	assert.Contains(t, restarted.engine.Hungup(), "chan-initiator")
	assert.False(t, restarted.locker.Held("chan-initiator"))
}

func TestCancelHangsUpRecipientAndRestoresCall(t *testing.T) {
	f := newFixture()

	tr, err := f.machine.Create(f.createRequest(model.TransferFlowAttended))
	require.NoError(t, err)

	require.NoError(t, f.machine.Cancel(tr.ID))
	assert.Contains(t, f.engine.Hungup(), "chan-recipient")
	assert.False(t, f.engine.OnMOH("chan-transferred"))

	_, err = f.stor.Get(tr.ID)
	assert.ErrorIs(t, err, stor.ErrNotFound)

	// Cancelling again: the record is gone.
	assert.ErrorIs(t, f.machine.Cancel(tr.ID), ErrNoSuchTransfer)
}
