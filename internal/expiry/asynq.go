package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/logger"
)

// TaskTypeLapse is the asynq task type carrying a Lapse payload.
const TaskTypeLapse = "seatlock:lapse"

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type deleter interface {
	DeleteTask(queue, id string) error
}

// TaskScheduler persists lapses as scheduled asynq tasks in Redis, so a
// lapse still fires (on any instance running the task server) after the
// process that took the hold has died.
type TaskScheduler struct {
	client    enqueuer
	inspector deleter
	queue     string

	mu  sync.Mutex
	ids map[string]string // seat key -> task id
}

// NewTaskScheduler wires an asynq client and inspector to queue.
func NewTaskScheduler(client *asynq.Client, inspector *asynq.Inspector, queue string) *TaskScheduler {
	return newTaskScheduler(client, inspector, queue)
}

func newTaskScheduler(c enqueuer, i deleter, queue string) *TaskScheduler {
	return &TaskScheduler{client: c, inspector: i, queue: queue, ids: make(map[string]string)}
}

func (s *TaskScheduler) Schedule(ctx context.Context, l Lapse, d time.Duration) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lapse: %w", err)
	}
	key := seatKey(l.ShowID, l.SeatID)
	id := key + ":" + uuid.NewString()
	task := asynq.NewTask(TaskTypeLapse, payload)
	if _, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.TaskID(id),
		asynq.ProcessIn(d),
		asynq.MaxRetry(0),
	); err != nil {
		return fmt.Errorf("enqueue lapse %s: %w", key, err)
	}

	s.mu.Lock()
	prev, had := s.ids[key]
	s.ids[key] = id
	s.mu.Unlock()
	if had {
		s.delete(prev)
	}
	return nil
}

func (s *TaskScheduler) Cancel(_ context.Context, showID uint64, seatID string) {
	key := seatKey(showID, seatID)
	s.mu.Lock()
	id, ok := s.ids[key]
	delete(s.ids, key)
	s.mu.Unlock()
	if ok {
		s.delete(id)
	}
}

func (s *TaskScheduler) delete(id string) {
	err := s.inspector.DeleteTask(s.queue, id)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		logger.Warn("expiry: delete lapse task failed", zap.String("task_id", id), zap.Error(err))
	}
}

// forget drops the local bookkeeping for a task that has fired.
func (s *TaskScheduler) forget(l Lapse) {
	key := seatKey(l.ShowID, l.SeatID)
	s.mu.Lock()
	delete(s.ids, key)
	s.mu.Unlock()
}

// NewTaskHandler adapts h to the asynq task server.  sched may be nil on
// instances that only process tasks.
func NewTaskHandler(h Handler, sched *TaskScheduler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var l Lapse
		if err := json.Unmarshal(t.Payload(), &l); err != nil {
			return fmt.Errorf("decode lapse: %v: %w", err, asynq.SkipRetry)
		}
		if l.ShowID == 0 || l.SeatID == "" {
			return fmt.Errorf("incomplete lapse payload: %w", asynq.SkipRetry)
		}
		if sched != nil {
			sched.forget(l)
		}
		h(ctx, l)
		return nil
	})
}
