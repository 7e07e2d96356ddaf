package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"atelier/cmd/internal/board"
	v1 "atelier/shared/contracts/collab/v1"
)

// TaskPublisher bridges committed board changes onto realtime rooms. It
// implements board.Publisher over the Router, so the board engine stays free
// of websocket concerns.
type TaskPublisher struct {
	log    *slog.Logger
	router *Router
}

// NewTaskPublisher constructs a TaskPublisher.
func NewTaskPublisher(log *slog.Logger, router *Router) *TaskPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &TaskPublisher{log: log.With("component", "task_publisher"), router: router}
}

// PublishTasks fans audience-filtered task rows out to one room.
func (p *TaskPublisher) PublishTasks(roomKey, eventType string, tasks []board.Task, ts time.Time) {
	if p == nil || p.router == nil || roomKey == "" || len(tasks) == 0 {
		return
	}

	raw, err := json.Marshal(tasks)
	if err != nil {
		p.log.Error("task payload marshal failed", "err", err, "type", eventType)
		return
	}

	env, err := newEnvelope(eventType, v1.TaskEventPayload{Tasks: raw, TS: ts}, ts)
	if err != nil {
		p.log.Error("task envelope build failed", "err", err, "type", eventType)
		return
	}

	p.router.Broadcast(env, roomKey)
}

// PublishPositions fans a validated bulk position update out to one room.
func (p *TaskPublisher) PublishPositions(roomKey string, changes []board.PositionChange, origin string, ts time.Time) {
	if p == nil || p.router == nil || roomKey == "" || len(changes) == 0 {
		return
	}

	wire := make([]v1.PositionChange, 0, len(changes))
	for _, c := range changes {
		order := c.Order
		wire = append(wire, v1.PositionChange{ID: c.ID, Status: c.Status, Order: &order})
	}

	env, err := newEnvelope(v1.TypePositions, v1.PositionsPayload{Changes: wire, TS: ts, Origin: origin}, ts)
	if err != nil {
		p.log.Error("positions envelope build failed", "err", err)
		return
	}

	p.router.Broadcast(env, roomKey)
}
