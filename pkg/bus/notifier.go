package bus

import (
	"github.com/apex/log"

	"github.com/openline-voip/calld/pkg/metrics"
	"github.com/openline-voip/calld/pkg/model"
	"github.com/openline-voip/calld/pkg/stor"
)

// Publisher is the fanout surface the notifier publishes to.
type Publisher interface {
	Broadcast(event string, data any)
	BroadcastToUser(userUUID, event string, data any)
}

// Notifier turns state machine transitions into bus events, history rows
// and metric updates. History write failures are logged, never surfaced.
type Notifier struct {
	pub     Publisher
	history stor.HistoryStor
}

func NewNotifier(pub Publisher, history stor.HistoryStor) *Notifier {
	return &Notifier{pub: pub, history: history}
}

func (n *Notifier) publish(userUUID, event string, data any) {
	n.pub.BroadcastToUser(userUUID, event, data)
	n.pub.Broadcast(event, data)
}

func (n *Notifier) TransferCreated(t *model.Transfer) {
	metrics.OperationsInFlight.WithLabelValues("transfer").Inc()
	n.publish(t.InitiatorUUID, "transfer_created", t)
}

func (n *Notifier) TransferAnswered(t *model.Transfer) {
	n.publish(t.InitiatorUUID, "transfer_answered", t)
}

func (n *Notifier) TransferCancelled(t *model.Transfer) {
	n.publish(t.InitiatorUUID, "transfer_cancelled", t)
}

func (n *Notifier) TransferCompleted(t *model.Transfer) {
	n.publish(t.InitiatorUUID, "transfer_completed", t)
}

func (n *Notifier) TransferAbandoned(t *model.Transfer) {
	n.publish(t.InitiatorUUID, "transfer_abandoned", t)
}

func (n *Notifier) TransferEnded(t *model.Transfer) {
	metrics.OperationsInFlight.WithLabelValues("transfer").Dec()
	metrics.TransfersTotal.WithLabelValues(string(t.Flow), t.Status).Inc()
	n.addHistory("transfer", t.ID, t.InitiatorUUID, t.Status)
	n.publish(t.InitiatorUUID, "transfer_ended", t)
}

func (n *Notifier) RelocateInitiated(r *model.Relocate) {
	metrics.OperationsInFlight.WithLabelValues("relocate").Inc()
	n.publish(r.UserUUID, "relocate_initiated", r)
}

func (n *Notifier) RelocateAnswered(r *model.Relocate) {
	n.publish(r.UserUUID, "relocate_answered", r)
}

func (n *Notifier) RelocateCompleted(r *model.Relocate) {
	n.publish(r.UserUUID, "relocate_completed", r)
}

func (n *Notifier) RelocateEnded(r *model.Relocate) {
	metrics.OperationsInFlight.WithLabelValues("relocate").Dec()
	metrics.RelocatesTotal.WithLabelValues(r.Status).Inc()
	n.addHistory("relocate", r.ID, r.UserUUID, r.Status)
	n.publish(r.UserUUID, "relocate_ended", r)
}

func (n *Notifier) addHistory(kind, recordID, initiatorUUID, status string) {
	if n.history == nil {
		return
	}

	entry := &stor.HistoryEntry{
		Kind:          kind,
		RecordID:      recordID,
		InitiatorUUID: initiatorUUID,
		Status:        status,
	}
	if err := n.history.AddEntry(entry); err != nil {
		log.WithError(err).Errorf("could not record %s %s in history", kind, recordID)
	}
}
