package notify

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"log/slog"
	"travelBooker/internal/events"
)

// EventHandler feeds outbox events to a Dispatcher.
type EventHandler struct {
	log        *slog.Logger
	dispatcher *Dispatcher
}

func NewEventHandler(log *slog.Logger, dispatcher *Dispatcher) *EventHandler {
	return &EventHandler{log: log, dispatcher: dispatcher}
}

// Handle always acknowledges: notifications are best effort.
func (h *EventHandler) Handle(msg *message.Message, event events.Event) error {
	const op = "notify.EventHandler.Handle"

	n, ok := FromEvent(event)
	if !ok {
		h.log.Debug("event has no notification",
			slog.String("op", op),
			slog.String("event_name", event.EventName()),
		)
		return nil
	}

	h.dispatcher.Dispatch(msg.Context(), n)

	return nil
}
