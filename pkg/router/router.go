// Package router demultiplexes the engine's ordered event feed into the
// transfer and relocate state machines. It holds no state of its own: every
// event is resolved against the live records in the stores at the moment it
// arrives.
package router

import (
	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/lock"
	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/relocate"
	"github.com/openline-voip/calld/pkg/stor"
	"github.com/openline-voip/calld/pkg/transfer"
)

type RouterOpts struct {
	Engine       engine.Client
	Transfers    *transfer.Machine
	Relocates    *relocate.Machine
	TransferStor stor.TransferStor
	RelocateStor stor.RelocateStor
	HangupLocker *lock.OpLocker
}

type Router struct {
	engine       engine.Client
	transfers    *transfer.Machine
	relocates    *relocate.Machine
	transferStor stor.TransferStor
	relocateStor stor.RelocateStor
	hangupLocker *lock.OpLocker
}

func NewRouter(opts RouterOpts) *Router {
	return &Router{
		engine:       opts.Engine,
		transfers:    opts.Transfers,
		relocates:    opts.Relocates,
		transferStor: opts.TransferStor,
		relocateStor: opts.RelocateStor,
		hangupLocker: opts.HangupLocker,
	}
}

// Process routes one feed event. Events that reference no live record are
// dropped; the feed reflects engine reality, not ours, and may outrun or
// trail the stores.
func (r *Router) Process(evt engine.Event) {
	switch evt.Type {
	case engine.EventChannelEnteredApp:
		r.channelEnteredApp(evt)
	case engine.EventChannelStateUp:
		r.channelStateUp(evt)
	case engine.EventChannelDestroyed, engine.EventChannelLeftApp:
		r.channelGone(evt)
	case engine.EventBridgeLeft:
		r.bridgeLeft(evt)
	default:
		log.Debugf("ignoring event type %s", evt.Type)
	}
}

// channelEnteredApp dispatches on the correlation argument vector the engine
// echoes back: [sub-app, action, id].
func (r *Router) channelEnteredApp(evt engine.Event) {
	if len(evt.Args) < 3 {
		log.Warnf("dropping app entry for channel %s: short argument vector %v", evt.Channel, evt.Args)
		return
	}

	subApp, action, id := evt.Args[0], evt.Args[1], evt.Args[2]

	switch subApp {
	case "transfer":
		switch action {
		case "transferred_joined", "initiator_joined":
			r.transfers.LegJoined(id, evt.Channel)
		case "recipient_called":
			r.transfers.RecipientCalled(id)
		default:
			log.Warnf("dropping app entry for channel %s: unknown transfer action %q", evt.Channel, action)
		}
	case "relocate":
		switch action {
		case "recipient_called":
			r.relocates.RecipientCalled(id)
		default:
			log.Warnf("dropping app entry for channel %s: unknown relocate action %q", evt.Channel, action)
		}
	default:
		log.Warnf("dropping app entry for channel %s: unknown sub-app %q", evt.Channel, subApp)
	}
}

func (r *Router) channelStateUp(evt engine.Event) {
	if t := r.findTransfer(evt.Channel); t != nil {
		if role, _ := t.RoleOf(evt.Channel); role == model.RoleRecipient {
			r.transfers.RecipientAnswered(t.ID)
		}
		return
	}

	if rel := r.findRelocate(evt.Channel); rel != nil {
		if role, _ := rel.RoleOf(evt.Channel); role == model.RoleRecipient {
			r.relocates.RecipientAnswered(rel.ID)
		}
		return
	}

	log.Debugf("channel %s answered outside any tracked operation", evt.Channel)
}

func (r *Router) channelGone(evt engine.Event) {
	if t := r.findTransfer(evt.Channel); t != nil {
		role, _ := t.RoleOf(evt.Channel)
		r.transfers.ChannelHungUp(t.ID, role)
		return
	}

	if rel := r.findRelocate(evt.Channel); rel != nil {
		role, _ := rel.RoleOf(evt.Channel)
		r.relocates.ChannelHungUp(rel.ID, role)
		return
	}

	log.Debugf("channel %s left outside any tracked operation", evt.Channel)
}

// bridgeLeft keeps mixing bridges from leaking: a lone occupant of a
// conversation that lost its other party is hung up, unless a hand-off is
// holding the leg, and an empty bridge is destroyed.
func (r *Router) bridgeLeft(evt engine.Event) {
	remaining, err := r.engine.ListBridgeChannels(evt.Bridge)
	if err != nil {
		if !errors.Is(err, engine.ErrNotFound) {
			log.WithError(err).Warnf("bridge %s occupant lookup failed", evt.Bridge)
		}
		return
	}

	switch len(remaining) {
	case 0:
		if err := r.engine.DestroyBridge(evt.Bridge); err != nil && !errors.Is(err, engine.ErrNotFound) {
			log.WithError(err).Warnf("could not destroy empty bridge %s", evt.Bridge)
		}
	case 1:
		lone := remaining[0]
		if r.hangupLocker.Held(lone) {
			log.Debugf("leaving hangup-locked channel %s alone in bridge %s", lone, evt.Bridge)
			return
		}
		if err := r.engine.Hangup(lone); err != nil && !errors.Is(err, engine.ErrNotFound) {
			log.WithError(err).Warnf("could not hang up orphaned channel %s", lone)
		}
	}
}

func (r *Router) findTransfer(channelID string) *model.Transfer {
	transfers, err := r.transferStor.List()
	if err != nil {
		log.WithError(err).Error("transfer listing failed while routing channel event")
		return nil
	}

	for i := range transfers {
		if _, ok := transfers[i].RoleOf(channelID); ok {
			return &transfers[i]
		}
	}

	return nil
}

func (r *Router) findRelocate(channelID string) *model.Relocate {
	relocates, err := r.relocateStor.List()
	if err != nil {
		log.WithError(err).Error("relocate listing failed while routing channel event")
		return nil
	}

	for i := range relocates {
		if _, ok := relocates[i].RoleOf(channelID); ok {
			return &relocates[i]
		}
	}

	return nil
}
