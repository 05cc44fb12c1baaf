package service

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier writes every notification to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ns []domain.Notification) error {
	for _, x := range ns {
		fields := []zap.Field{
			zap.String("event_id", x.EventID.String()),
			zap.String("type", string(x.Type)),
			zap.String("subject_id", x.SubjectID.String()),
		}
		if x.CuriosityID != nil {
			fields = append(fields, zap.String("curiosity_id", x.CuriosityID.String()))
		}
		if x.NewStatus != "" {
			fields = append(fields, zap.String("old_status", string(x.OldStatus)), zap.String("new_status", string(x.NewStatus)))
		}
		if len(x.AffectedIDs) > 0 {
			fields = append(fields, zap.Int("affected", len(x.AffectedIDs)))
		}
		n.logger.Info("notification", fields...)
	}
	return nil
}

// Hub fans notifications out to in-process subscribers. A subscriber that
// falls behind loses notifications rather than blocking the turn.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan domain.Notification
	closed bool
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uuid.UUID]chan domain.Notification), buffer: buffer, logger: logger}
}

// Subscribe returns a channel of notifications and a cancel func that closes
// it. The channel is also closed when the hub shuts down.
func (h *Hub) Subscribe() (<-chan domain.Notification, func()) {
	id := uuid.New()
	ch := make(chan domain.Notification, h.buffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Close ends every subscription. Later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Notify(ctx context.Context, ns []domain.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, x := range ns {
		for id, ch := range h.subs {
			select {
			case ch <- x:
			default:
				h.logger.Warn("dropping notification for slow subscriber",
					zap.String("subscriber", id.String()),
					zap.String("event_id", x.EventID.String()))
			}
		}
	}
	return nil
}

// MultiNotifier delivers to each notifier in order and returns the first error.
type MultiNotifier []domain.Notifier

func (m MultiNotifier) Notify(ctx context.Context, ns []domain.Notification) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, ns); err != nil && first == nil {
			first = err
		}
	}
	return first
}
