package messaging

import (
	"encoding/json"
	"log/slog"
	"oracle-broker/pkg/models"
)

// EventWorker drains broker events from a receiver and hands them to the
// registered callbacks. Malformed payloads are rejected, handled events acked.
type EventWorker struct {
	receiver Reciever

	OnSubmission func(models.SubmissionEvent)
	OnResolution func(models.ResolutionEvent)
}

func NewEventWorker(receiver Reciever) *EventWorker {
	return &EventWorker{receiver: receiver}
}

// Run blocks until the receiver's task channel is closed.
func (w *EventWorker) Run() {
	for task := range w.receiver.Tasks() {
		w.handle(task)
	}
	slog.Info("event worker stopped")
}

func (w *EventWorker) handle(task Task) {
	switch task.Type() {
	case SubmissionQueue:
		var event models.SubmissionEvent
		if err := json.Unmarshal(task.Payload(), &event); err != nil {
			slog.Error("error parsing submission event", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting event", "error", err)
			}
			return
		}
		if w.OnSubmission != nil {
			w.OnSubmission(event)
		}
	case ResolutionQueue:
		var event models.ResolutionEvent
		if err := json.Unmarshal(task.Payload(), &event); err != nil {
			slog.Error("error parsing resolution event", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting event", "error", err)
			}
			return
		}
		if w.OnResolution != nil {
			w.OnResolution(event)
		}
	default:
		slog.Warn("unexpected event type", "type", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting event", "error", err)
		}
		return
	}

	if err := task.Ack(); err != nil {
		slog.Error("error acking event", "type", task.Type(), "error", err)
	}
}
