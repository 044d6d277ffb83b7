package transfer

import (
	"context"

	"github.com/apex/log"
	"github.com/hashicorp/go-uuid"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/lock"
	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/stor"
)

// Notifier receives the transitions the outside world must observe.
type Notifier interface {
	TransferCreated(t *model.Transfer)
	TransferAnswered(t *model.Transfer)
	TransferCancelled(t *model.Transfer)
	TransferCompleted(t *model.Transfer)
	TransferAbandoned(t *model.Transfer)
	TransferEnded(t *model.Transfer)
}

// MachineOpts collects the collaborators a Machine needs.
type MachineOpts struct {
	Engine       engine.Client
	Admin        engine.AdminClient
	Stor         stor.TransferStor
	Locker       *lock.OpLocker
	HangupLocker *lock.OpLocker
	Notifier     Notifier
	App          string
	MOHClass     string
}

// Machine runs the transfer state machine. It holds no per-transfer state of
// its own: every trigger reloads the record from the store, validates the
// transition against the flow's table, runs the engine command sequence, and
// only then persists the new state.
type Machine struct {
	engine       engine.Client
	admin        engine.AdminClient
	stor         stor.TransferStor
	locker       *lock.OpLocker
	hangupLocker *lock.OpLocker
	notifier     Notifier
	app          string
	mohClass     string
}

func NewMachine(opts MachineOpts) *Machine {
	return &Machine{
		engine:       opts.Engine,
		admin:        opts.Admin,
		stor:         opts.Stor,
		locker:       opts.Locker,
		hangupLocker: opts.HangupLocker,
		notifier:     opts.Notifier,
		app:          opts.App,
		mohClass:     opts.MOHClass,
	}
}

// CreateRequest carries the parameters of a create operation.
type CreateRequest struct {
	TransferredCall string
	InitiatorCall   string
	Context         string
	Exten           string
	Flow            model.TransferFlow
	Variables       map[string]string
	Timeout         int
	InitiatorUUID   string
}

const defaultRingTimeout = 30

// Create starts a new transfer. It acquires the operation lock for the
// initiator call; a second create racing on the same initiator fails fast
// with ErrAlreadyStarted.
func (m *Machine) Create(req CreateRequest) (*model.Transfer, error) {
	flow := req.Flow
	if flow == "" {
		flow = model.TransferFlowAttended
	}
	if flow != model.TransferFlowAttended && flow != model.TransferFlowBlind {
		return nil, &CreationError{Reason: "invalid flow: " + string(flow)}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultRingTimeout
	}

	transferredChan, err := m.engine.GetChannel(req.TransferredCall)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, &CreationError{Reason: "transferred call not found: " + req.TransferredCall}
		}
		return nil, err
	}

	initiatorChan, err := m.engine.GetChannel(req.InitiatorCall)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, &CreationError{Reason: "initiator call not found: " + req.InitiatorCall}
		}
		return nil, err
	}

	exists, err := m.admin.ExtensionExists(req.Context, req.Exten)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &CreationError{Reason: "no such extension: " + req.Exten + "@" + req.Context}
	}

	if !m.locker.Acquire(req.InitiatorCall) {
		return nil, ErrAlreadyStarted
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		m.locker.Release(req.InitiatorCall)
		return nil, err
	}

	t := &model.Transfer{
		ID:              id,
		InitiatorUUID:   req.InitiatorUUID,
		TransferredCall: req.TransferredCall,
		InitiatorCall:   req.InitiatorCall,
		Status:          model.TransferStarting,
		Flow:            flow,
		Context:         req.Context,
		Exten:           req.Exten,
		Variables:       req.Variables,
		Timeout:         timeout,
	}

	if transferredChan.InApp && initiatorChan.InApp {
		if err := m.startRingback(t); err != nil {
			m.locker.Release(req.InitiatorCall)
			return nil, err
		}
	} else {
		if err := m.redirectLegs(t); err != nil {
			m.locker.Release(req.InitiatorCall)
			return nil, err
		}
		if err := m.stor.Upsert(t); err != nil {
			m.locker.Release(req.InitiatorCall)
			return nil, err
		}
	}

	m.notifier.TransferCreated(t)

	return t, nil
}

// redirectLegs pushes legs still in ordinary dialplan into the managed
// application through the admin protocol. Control confirmation arrives later
// as ChannelEnteredApp events.
func (m *Machine) redirectLegs(t *model.Transfer) error {
	type leg struct {
		channel string
		action  string
	}

	for _, l := range []leg{
		{channel: t.TransferredCall, action: "transferred_joined"},
		{channel: t.InitiatorCall, action: "initiator_joined"},
	} {
		if err := m.admin.SetVar(l.channel, "CALLD_TRANSFER_ID", t.ID); err != nil {
			return err
		}
		if err := m.admin.RedirectToApp(l.channel, m.app, []string{"transfer", l.action, t.ID}); err != nil {
			return err
		}
	}

	return nil
}

// startRingback runs the starting→ringback command sequence: the transfer
// bridge is created under the transfer's own ID, the transferred leg goes on
// hold inside it, the initiator joins it, and the recipient leg is
// originated with the correlation vector the engine will echo back.
func (m *Machine) startRingback(t *model.Transfer) error {
	f := newStateMachine(t.Flow, t.Status)
	if !f.Can(TrigControlAcquired) {
		return errors.Errorf("transfer %s cannot start ringback from state %s", t.ID, t.Status)
	}

	if err := m.engine.CreateBridge(t.ID); err != nil {
		return err
	}

	if err := m.engine.AddChannelToBridge(t.ID, t.TransferredCall); err != nil {
		m.destroyBridgeQuietly(t.ID)
		return err
	}
	if err := m.engine.StartMOH(t.TransferredCall, m.mohClass); err != nil {
		m.destroyBridgeQuietly(t.ID)
		return err
	}
	if err := m.engine.AddChannelToBridge(t.ID, t.InitiatorCall); err != nil {
		m.destroyBridgeQuietly(t.ID)
		return err
	}

	recipient, err := m.engine.Originate(engine.OriginateRequest{
		Endpoint:  t.Exten + "@" + t.Context,
		App:       m.app,
		AppArgs:   []string{"transfer", "recipient_called", t.ID},
		Variables: t.Variables,
		Timeout:   t.Timeout,
	})
	if err != nil {
		if mohErr := m.engine.StopMOH(t.TransferredCall); mohErr != nil {
			log.Warnf("transfer %s: could not stop hold music after failed originate: %v", t.ID, mohErr)
		}
		return err
	}

	t.RecipientCall = recipient.ID
	t.Status = advance(f, TrigControlAcquired)

	return m.stor.Upsert(t)
}

// LegJoined handles a transferred or initiator leg entering the managed
// application while the transfer is starting. The legs' control state is
// re-derived from the engine on every call, never cached.
func (m *Machine) LegJoined(transferID, channelID string) {
	t, err := m.stor.Get(transferID)
	if err != nil {
		log.Infof("dropping leg join for unknown transfer %s (channel %s)", transferID, channelID)
		return
	}

	if t.Status != model.TransferStarting {
		log.Infof("dropping leg join for transfer %s in state %s", transferID, t.Status)
		return
	}

	transferredChan, err := m.engine.GetChannel(t.TransferredCall)
	if err != nil {
		log.WithError(err).Errorf("transfer %s: transferred leg lookup failed", t.ID)
		return
	}
	initiatorChan, err := m.engine.GetChannel(t.InitiatorCall)
	if err != nil {
		log.WithError(err).Errorf("transfer %s: initiator leg lookup failed", t.ID)
		return
	}

	if !transferredChan.InApp || !initiatorChan.InApp {
		// the other leg has not reached the app yet
		return
	}

	if err := m.startRingback(t); err != nil {
		log.WithError(err).Errorf("transfer %s: ringback setup failed", t.ID)
	}
}

// RecipientCalled handles the recipient leg entering the managed app. For a
// blind transfer this is the hand-off point: the initiator is released and
// the transferred leg takes ownership of the ringing call.
func (m *Machine) RecipientCalled(transferID string) {
	t, err := m.stor.Get(transferID)
	if err != nil {
		log.Infof("dropping recipient ring for unknown transfer %s", transferID)
		return
	}

	if t.Flow != model.TransferFlowBlind {
		log.Debugf("transfer %s: recipient leg %s ringing", t.ID, t.RecipientCall)
		return
	}

	f := newStateMachine(t.Flow, t.Status)
	if !f.Can(TrigRecipientCalled) {
		log.Infof("dropping recipient ring for transfer %s in state %s", t.ID, t.Status)
		return
	}

	if err := m.blindHandoff(t, f, TrigRecipientCalled); err != nil {
		log.WithError(err).Errorf("transfer %s: blind handoff failed", t.ID)
	}
}

// blindHandoff releases the initiator leg and leaves the transferred leg
// alone in the transfer bridge, held, while the recipient keeps ringing.
func (m *Machine) blindHandoff(t *model.Transfer, f *fsm.FSM, trigger string) error {
	// The bridge is about to drop to one occupant; keep the router's orphan
	// cleanup away from the transferred leg until the transfer ends.
	m.hangupLocker.Acquire(t.TransferredCall)

	if err := ignoreNotFound(m.engine.Hangup(t.InitiatorCall)); err != nil {
		m.hangupLocker.Release(t.TransferredCall)
		return err
	}

	t.Status = advance(f, trigger)

	return m.stor.Upsert(t)
}

// RecipientAnswered handles the recipient leg going up.
func (m *Machine) RecipientAnswered(transferID string) {
	t, err := m.stor.Get(transferID)
	if err != nil {
		log.Infof("dropping recipient answer for unknown transfer %s", transferID)
		return
	}

	f := newStateMachine(t.Flow, t.Status)
	if !f.Can(TrigRecipientAnswered) {
		log.Infof("dropping recipient answer for transfer %s in state %s", t.ID, t.Status)
		return
	}

	switch t.Status {
	case model.TransferRingback:
		// attended: initiator and recipient talk while transferred stays held
		if err := m.engine.AddChannelToBridge(t.ID, t.RecipientCall); err != nil {
			log.WithError(err).Errorf("transfer %s: could not bridge recipient", t.ID)
			return
		}

		t.Status = advance(f, TrigRecipientAnswered)
		if err := m.stor.Upsert(t); err != nil {
			log.WithError(err).Errorf("transfer %s: persist failed", t.ID)
			return
		}
		m.notifier.TransferAnswered(t)

	case model.TransferBlindTransferred:
		// blind: the transferred leg finally talks to the recipient
		if err := ignoreNotFound(m.engine.StopMOH(t.TransferredCall)); err != nil {
			log.WithError(err).Errorf("transfer %s: could not stop hold music", t.ID)
			return
		}
		if err := m.engine.AddChannelToBridge(t.ID, t.RecipientCall); err != nil {
			log.WithError(err).Errorf("transfer %s: could not bridge recipient", t.ID)
			return
		}

		t.Status = advance(f, TrigRecipientAnswered)
		m.terminate(t)
	}
}

// ChannelHungUp handles a leg of the transfer being destroyed, including
// ring-timeout expiry which the engine delivers as an ordinary destroy of
// the recipient leg.
func (m *Machine) ChannelHungUp(transferID string, role model.TransferRole) {
	t, err := m.stor.Get(transferID)
	if err != nil {
		log.Debugf("dropping hangup for unknown transfer %s", transferID)
		return
	}

	trigger := hangupTrigger(role)
	f := newStateMachine(t.Flow, t.Status)
	if !f.Can(trigger) {
		log.Infof("dropping %s for transfer %s in state %s", trigger, t.ID, t.Status)
		return
	}

	if t.Flow == model.TransferFlowBlind && t.Status == model.TransferRingback && role == model.RoleInitiator {
		// blind: the recipient keeps ringing, ownership passes to the
		// transferred leg
		if err := m.blindHandoff(t, f, trigger); err != nil {
			log.WithError(err).Errorf("transfer %s: blind handoff failed", t.ID)
		}
		return
	}

	if err := m.hangupCommands(t, role); err != nil {
		log.WithError(err).Errorf("transfer %s: %s cleanup failed", t.ID, trigger)
		return
	}

	t.Status = advance(f, trigger)
	m.terminate(t)
}

// hangupCommands runs the side effects of a hangup trigger, before any state
// is persisted.
func (m *Machine) hangupCommands(t *model.Transfer, role model.TransferRole) error {
	switch {
	case t.Status == model.TransferRingback && role == model.RoleRecipient:
		// ring timeout or decline: un-hold so transferred and initiator talk
		// again in the transfer bridge
		return m.cancelCommands(t, false)

	case t.Status == model.TransferRingback:
		// transferred or initiator gone while the recipient still rings
		if err := ignoreNotFound(m.hangupRecipient(t)); err != nil {
			return err
		}
		return ignoreNotFound(m.engine.StopMOH(t.TransferredCall))

	case t.Status == model.TransferAnswered && role == model.RoleInitiator:
		// implicit complete: un-hold transferred, already bridged with the
		// recipient; nothing else is hung up
		return ignoreNotFound(m.engine.StopMOH(t.TransferredCall))

	case t.Status == model.TransferAnswered && role == model.RoleTransferred:
		// abandoned: initiator and recipient stay bridged
		return nil

	case t.Status == model.TransferAnswered && role == model.RoleRecipient:
		return m.cancelCommands(t, false)

	case t.Status == model.TransferBlindTransferred:
		// whoever is left has no one to talk to
		if role == model.RoleTransferred {
			return ignoreNotFound(m.hangupRecipient(t))
		}
		return ignoreNotFound(m.engine.Hangup(t.TransferredCall))
	}

	return nil
}

// cancelCommands tears down the recipient leg and gives the call back to
// transferred+initiator. The transferred leg stays held until the recipient
// is gone so it is never exposed to raw silence mid-teardown.
func (m *Machine) cancelCommands(t *model.Transfer, hangupRecipient bool) error {
	if hangupRecipient {
		if err := ignoreNotFound(m.hangupRecipient(t)); err != nil {
			return err
		}
	}

	return ignoreNotFound(m.engine.StopMOH(t.TransferredCall))
}

func (m *Machine) hangupRecipient(t *model.Transfer) error {
	if t.RecipientCall == "" {
		return nil
	}

	return m.engine.Hangup(t.RecipientCall)
}

// Complete finishes the transfer. For an attended transfer in answered state
// the initiator leg is hung up and the transferred leg joins the recipient;
// for a blind transfer still in ringback this is the explicit hand-off.
func (m *Machine) Complete(id string) error {
	t, err := m.stor.Get(id)
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return ErrNoSuchTransfer
		}
		return err
	}

	f := newStateMachine(t.Flow, t.Status)
	if !f.Can(TrigComplete) {
		return &CompletionError{Reason: "transfer " + t.ID + " cannot be completed from state " + t.Status}
	}

	if t.Flow == model.TransferFlowBlind {
		return m.blindHandoff(t, f, TrigComplete)
	}

	if err := ignoreNotFound(m.engine.StopMOH(t.TransferredCall)); err != nil {
		return err
	}
	if err := ignoreNotFound(m.engine.Hangup(t.InitiatorCall)); err != nil {
		return err
	}

	t.Status = advance(f, TrigComplete)
	m.terminate(t)

	return nil
}

// Cancel aborts the transfer and re-establishes the transferred+initiator
// conversation.
func (m *Machine) Cancel(id string) error {
	t, err := m.stor.Get(id)
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return ErrNoSuchTransfer
		}
		return err
	}

	f := newStateMachine(t.Flow, t.Status)
	if !f.Can(TrigCancel) {
		return &CancellationError{Reason: "transfer " + t.ID + " cannot be cancelled from state " + t.Status}
	}

	if err := m.cancelCommands(t, true); err != nil {
		return err
	}

	t.Status = advance(f, TrigCancel)
	m.terminate(t)

	return nil
}

// Get returns one live transfer.
func (m *Machine) Get(id string) (*model.Transfer, error) {
	t, err := m.stor.Get(id)
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return nil, ErrNoSuchTransfer
		}
		return nil, err
	}

	return t, nil
}

// ListForUser returns the live transfers initiated by one user.
func (m *Machine) ListForUser(userUUID string) ([]model.Transfer, error) {
	all, err := m.stor.List()
	if err != nil {
		return nil, err
	}

	transfers := make([]model.Transfer, 0, len(all))
	for _, t := range all {
		if t.InitiatorUUID == userUUID {
			transfers = append(transfers, t)
		}
	}

	return transfers, nil
}

// RecoverLocks re-acquires the operation lock (and hangup lock where needed)
// for every transfer found in the store. Called once at daemon startup,
// before HTTP traffic is served, so a create racing the restart window
// cannot double-book an initiator whose operation survived the restart.
func (m *Machine) RecoverLocks() error {
	transfers, err := m.stor.List()
	if err != nil {
		return err
	}

	for _, t := range transfers {
		if !m.locker.Acquire(t.InitiatorCall) {
			log.Warnf("transfer %s: lock for %s already held during recovery", t.ID, t.InitiatorCall)
		}
		if t.Status == model.TransferBlindTransferred {
			m.hangupLocker.Acquire(t.TransferredCall)
		}
		log.Infof("recovered transfer %s in state %s", t.ID, t.Status)
	}

	return nil
}

// terminate removes the record, releases the locks, and publishes the
// terminal events. The record's absence from the store is what makes the
// transfer observable as finished.
func (m *Machine) terminate(t *model.Transfer) {
	if err := m.stor.Remove(t.ID); err != nil {
		log.WithError(err).Errorf("transfer %s: remove failed", t.ID)
	}

	m.locker.Release(t.InitiatorCall)
	if m.hangupLocker.Held(t.TransferredCall) {
		m.hangupLocker.Release(t.TransferredCall)
	}

	switch t.Status {
	case model.TransferCompleted:
		m.notifier.TransferCompleted(t)
	case model.TransferCancelled:
		m.notifier.TransferCancelled(t)
	case model.TransferAbandoned:
		m.notifier.TransferAbandoned(t)
	}

	m.notifier.TransferEnded(t)
}

func (m *Machine) destroyBridgeQuietly(bridgeID string) {
	if err := m.engine.DestroyBridge(bridgeID); err != nil && !errors.Is(err, engine.ErrNotFound) {
		log.Warnf("could not destroy bridge %s: %v", bridgeID, err)
	}
}

func hangupTrigger(role model.TransferRole) string {
	switch role {
	case model.RoleTransferred:
		return TrigTransferredHangup
	case model.RoleInitiator:
		return TrigInitiatorHangup
	default:
		return TrigRecipientHangup
	}
}

// advance moves the transient state machine along a transition the caller
// already validated with Can.
func advance(f *fsm.FSM, trigger string) string {
	if err := f.Event(context.Background(), trigger); err != nil {
		log.WithError(err).Errorf("state machine refused %s", trigger)
	}

	return f.Current()
}

func ignoreNotFound(err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return nil
	}

	return err
}
