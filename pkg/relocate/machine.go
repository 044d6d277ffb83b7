package relocate

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

// Notifier receives the relocate transitions the outside world must observe.
type Notifier interface {
	RelocateInitiated(r *model.Relocate)
	RelocateAnswered(r *model.Relocate)
	RelocateCompleted(r *model.Relocate)
	RelocateEnded(r *model.Relocate)
}

// MachineOpts collects the collaborators a Machine needs.
type MachineOpts struct {
	Engine       engine.Client
	Stor         stor.RelocateStor
	Locker       *lock.OpLocker
	HangupLocker *lock.OpLocker
	Notifier     Notifier
	App          string
}

// Machine runs the relocate state machine: move a user's side of a call to
// another of their configured devices. Same shape as the transfer machine,
// narrower trigger set, dedicated lock.
type Machine struct {
	engine       engine.Client
	stor         stor.RelocateStor
	locker       *lock.OpLocker
	hangupLocker *lock.OpLocker
	notifier     Notifier
	app          string
}

func NewMachine(opts MachineOpts) *Machine {
	return &Machine{
		engine:       opts.Engine,
		stor:         opts.Stor,
		locker:       opts.Locker,
		hangupLocker: opts.HangupLocker,
		notifier:     opts.Notifier,
		app:          opts.App,
	}
}

// CreateRequest carries the parameters of a relocate creation. The relocated
// leg is not named by the caller: it is the peer of the initiator's current
// conversation, resolved from the engine at create time.
type CreateRequest struct {
	InitiatorCall string
	Destination   model.Destination
	Completions   []string
	Timeout       int
	UserUUID      string
}

const defaultRingTimeout = 30

// Create starts a relocate of the initiator's current call to the requested
// destination device.
func (m *Machine) Create(req CreateRequest) (*model.Relocate, error) {
	endpoint, err := destinationEndpoint(req.Destination)
	if err != nil {
		return nil, err
	}

	initiatorChan, err := m.engine.GetChannel(req.InitiatorCall)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, &CreationError{Reason: "initiator call not found: " + req.InitiatorCall}
		}
		return nil, err
	}

	if initiatorChan.BridgeID == "" {
		return nil, &CreationError{Reason: "initiator call is not in a conversation"}
	}

	relocated, err := m.findPeer(initiatorChan)
	if err != nil {
		return nil, err
	}

	if !m.locker.Acquire(req.InitiatorCall) {
		return nil, ErrAlreadyStarted
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		m.locker.Release(req.InitiatorCall)
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultRingTimeout
	}

	recipient, err := m.engine.Originate(engine.OriginateRequest{
		Endpoint: endpoint,
		App:      m.app,
		AppArgs:  []string{"relocate", "recipient_called", id},
		Timeout:  timeout,
	})
	if err != nil {
		m.locker.Release(req.InitiatorCall)
		return nil, err
	}

	r := &model.Relocate{
		ID:            id,
		UserUUID:      req.UserUUID,
		RelocatedCall: relocated,
		InitiatorCall: req.InitiatorCall,
		RecipientCall: recipient.ID,
		Status:        model.RelocateReady,
		Completions:   req.Completions,
		Destination:   req.Destination,
	}

	f := newStateMachine(r.Status)
	r.Status = advance(f, TrigStarted)

	if err := m.stor.Upsert(r); err != nil {
		m.locker.Release(req.InitiatorCall)
		return nil, err
	}

	m.notifier.RelocateInitiated(r)

	return r, nil
}

// findPeer resolves the leg the initiator is currently talking to.
func (m *Machine) findPeer(initiator *engine.Channel) (string, error) {
	members, err := m.engine.ListBridgeChannels(initiator.BridgeID)
	if err != nil {
		return "", err
	}

	for _, member := range members {
		if member != initiator.ID {
			return member, nil
		}
	}

	return "", &CreationError{Reason: "no call to relocate for " + initiator.ID}
}

// RecipientCalled handles the recipient leg entering the managed app.
func (m *Machine) RecipientCalled(relocateID string) {
	r, err := m.stor.Get(relocateID)
	if err != nil {
		log.Infof("dropping recipient ring for unknown relocate %s", relocateID)
		return
	}

	log.Debugf("relocate %s: recipient leg %s ringing", r.ID, r.RecipientCall)
}

// RecipientAnswered handles the recipient device going up. When the relocate
// has no api completion requirement it finishes immediately.
func (m *Machine) RecipientAnswered(relocateID string) {
	r, err := m.stor.Get(relocateID)
	if err != nil {
		log.Infof("dropping recipient answer for unknown relocate %s", relocateID)
		return
	}

	f := newStateMachine(r.Status)
	if !f.Can(TrigAnswered) {
		log.Infof("dropping recipient answer for relocate %s in state %s", r.ID, r.Status)
		return
	}

	r.Status = advance(f, TrigAnswered)
	if err := m.stor.Upsert(r); err != nil {
		log.WithError(err).Errorf("relocate %s: persist failed", r.ID)
		return
	}
	m.notifier.RelocateAnswered(r)

	if r.AutoComplete() {
		if err := m.complete(r); err != nil {
			log.WithError(err).Errorf("relocate %s: auto-completion failed", r.ID)
		}
	}
}

// Complete finishes the relocate on explicit request.
func (m *Machine) Complete(id string) error {
	r, err := m.stor.Get(id)
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return ErrNoSuchRelocate
		}
		return err
	}

	f := newStateMachine(r.Status)
	if !f.Can(TrigComplete) {
		return &CompletionError{Reason: "relocate " + r.ID + " cannot be completed from state " + r.Status}
	}

	return m.complete(r)
}

// complete swaps the initiator's device for the recipient's: the recipient
// leg joins the bridge the relocated call lives in, then the old device leg
// is hung up.
func (m *Machine) complete(r *model.Relocate) error {
	relocatedChan, err := m.engine.GetChannel(r.RelocatedCall)
	if err != nil {
		return err
	}
	if relocatedChan.BridgeID == "" {
		return errors.Errorf("relocate %s: relocated call %s left its bridge", r.ID, r.RelocatedCall)
	}

	// The bridge momentarily counts the relocated leg among churn; keep the
	// router's orphan cleanup away from it during the swap.
	m.hangupLocker.Acquire(r.RelocatedCall)
	defer m.hangupLocker.Release(r.RelocatedCall)

	if err := m.engine.AddChannelToBridge(relocatedChan.BridgeID, r.RecipientCall); err != nil {
		return err
	}
	if err := ignoreNotFound(m.engine.Hangup(r.InitiatorCall)); err != nil {
		return err
	}

	f := newStateMachine(r.Status)
	r.Status = advance(f, TrigComplete)
	m.terminate(r, true)

	return nil
}

// ChannelHungUp handles one of the relocate's legs being destroyed.
func (m *Machine) ChannelHungUp(relocateID string, role model.TransferRole) {
	r, err := m.stor.Get(relocateID)
	if err != nil {
		log.Debugf("dropping hangup for unknown relocate %s", relocateID)
		return
	}

	trigger := hangupTrigger(role)
	f := newStateMachine(r.Status)
	if !f.Can(trigger) {
		log.Infof("dropping %s for relocate %s in state %s", trigger, r.ID, r.Status)
		return
	}

	if role != model.RoleRecipient {
		if err := ignoreNotFound(m.hangupRecipient(r)); err != nil {
			log.WithError(err).Errorf("relocate %s: recipient cleanup failed", r.ID)
			return
		}
	}

	r.Status = advance(f, trigger)
	m.terminate(r, false)
}

// Cancel aborts the relocate, hanging up the recipient device.
func (m *Machine) Cancel(id string) error {
	r, err := m.stor.Get(id)
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return ErrNoSuchRelocate
		}
		return err
	}

	f := newStateMachine(r.Status)
	if !f.Can(TrigCancel) {
		return &CancellationError{Reason: "relocate " + r.ID + " cannot be cancelled from state " + r.Status}
	}

	if err := ignoreNotFound(m.hangupRecipient(r)); err != nil {
		return err
	}

	r.Status = advance(f, TrigCancel)
	m.terminate(r, false)

	return nil
}

func (m *Machine) hangupRecipient(r *model.Relocate) error {
	if r.RecipientCall == "" {
		return nil
	}

	return m.engine.Hangup(r.RecipientCall)
}

// Get returns one live relocate.
func (m *Machine) Get(id string) (*model.Relocate, error) {
	r, err := m.stor.Get(id)
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return nil, ErrNoSuchRelocate
		}
		return nil, err
	}

	return r, nil
}

// ListForUser returns the live relocates belonging to one user.
func (m *Machine) ListForUser(userUUID string) ([]model.Relocate, error) {
	all, err := m.stor.List()
	if err != nil {
		return nil, err
	}

	relocates := make([]model.Relocate, 0, len(all))
	for _, r := range all {
		if r.UserUUID == userUUID {
			relocates = append(relocates, r)
		}
	}

	return relocates, nil
}

// RecoverLocks re-acquires the relocate lock for every record found in the
// store. Called once at daemon startup.
func (m *Machine) RecoverLocks() error {
	relocates, err := m.stor.List()
	if err != nil {
		return err
	}

	for _, r := range relocates {
		if !m.locker.Acquire(r.InitiatorCall) {
			log.Warnf("relocate %s: lock for %s already held during recovery", r.ID, r.InitiatorCall)
		}
		log.Infof("recovered relocate %s in state %s", r.ID, r.Status)
	}

	return nil
}

func (m *Machine) terminate(r *model.Relocate, completed bool) {
	if err := m.stor.Remove(r.ID); err != nil {
		log.WithError(err).Errorf("relocate %s: remove failed", r.ID)
	}

	m.locker.Release(r.InitiatorCall)

	if completed {
		m.notifier.RelocateCompleted(r)
	}
	m.notifier.RelocateEnded(r)
}

func destinationEndpoint(d model.Destination) (string, error) {
	switch d.Kind {
	case model.DestinationLine:
		if d.LineEndpoint == "" {
			return "", &CreationError{Reason: "line destination without endpoint"}
		}
		return d.LineEndpoint, nil
	case model.DestinationMobile:
		if d.Number == "" || d.Context == "" {
			return "", &CreationError{Reason: "mobile destination without number or context"}
		}
		return d.Number + "@" + d.Context, nil
	}

	return "", &CreationError{Reason: "unknown destination kind: " + string(d.Kind)}
}

func hangupTrigger(role model.TransferRole) string {
	switch role {
	case model.RoleTransferred:
		return TrigRelocatedHangup
	case model.RoleInitiator:
		// the old device going away mid-relocate aborts it like a cancel
		return TrigCancel
	default:
		return TrigRecipientHangup
	}
}

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
