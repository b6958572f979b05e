// Package queuetest provides an in-memory queue.Client for service tests.
package queuetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/queue"
)

type Task struct {
	ID      string
	Type    string
	Queue   string
	Payload json.RawMessage
	At      time.Time

	archived bool
}

// Decode unmarshals the recorded payload into v.
func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// Recorder keeps tasks in memory with the id rules of the real broker: a
// pending or archived task holds its id, so Schedule with that id is a no-op,
// while Complete frees it as a finished task without retention would.
type Recorder struct {
	mu      sync.Mutex
	seq     int
	tasks   []Task
	removed []string
	done    []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

var _ queue.Client = (*Recorder)(nil)

func (r *Recorder) Enqueue(_ context.Context, taskType string, payload any, _ ...asynq.Option) (string, error) {
	return r.add(taskType, payload, time.Time{}, "", false)
}

func (r *Recorder) Schedule(_ context.Context, taskType string, payload any, at time.Time, taskID string) (string, error) {
	return r.add(taskType, payload, at, taskID, false)
}

// Ensure replaces an archived task under the same id.
func (r *Recorder) Ensure(_ context.Context, taskType string, payload any, at time.Time, taskID string) (string, error) {
	return r.add(taskType, payload, at, taskID, true)
}

func (r *Recorder) add(taskType string, payload any, at time.Time, taskID string, replaceArchived bool) (string, error) {
	q, ok := queue.QueueFor(taskType)
	if !ok {
		return "", queue.ErrUnknownTaskType
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if taskID != "" {
		if i := r.indexOf(taskID); i >= 0 {
			if !replaceArchived || !r.tasks[i].archived {
				return taskID, nil
			}
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
		}
	} else {
		r.seq++
		taskID = fmt.Sprintf("task-%d", r.seq)
	}
	r.tasks = append(r.tasks, Task{ID: taskID, Type: taskType, Queue: q, Payload: body, At: at})
	return taskID, nil
}

func (r *Recorder) indexOf(taskID string) int {
	for i, t := range r.tasks {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}

// Complete marks a task as processed successfully and frees its id.
func (r *Recorder) Complete(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(taskID); i >= 0 {
		r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
		r.done = append(r.done, taskID)
	}
}

// Archive marks a task as having exhausted its retries. It keeps its id.
func (r *Recorder) Archive(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(taskID); i >= 0 {
		r.tasks[i].archived = true
	}
}

// Completed lists ids passed to Complete, in order.
func (r *Recorder) Completed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.done...)
}

func (r *Recorder) Remove(_ context.Context, _ string, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks {
		if t.ID == taskID {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			r.removed = append(r.removed, taskID)
			return nil
		}
	}
	return nil
}

// Tasks returns pending tasks of the given type, or all when taskType is empty.
// Archived tasks are left out.
func (r *Recorder) Tasks(taskType string) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.archived {
			continue
		}
		if taskType == "" || t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}

func (r *Recorder) Removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

// Reset drops all recorded tasks.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.tasks = nil
	r.removed = nil
	r.done = nil
	r.mu.Unlock()
}

// Asynq wraps the recorded payload in the envelope a worker would receive.
func (t Task) Asynq() *asynq.Task {
	env, _ := json.Marshal(queue.Envelope{Data: t.Payload})
	return asynq.NewTask(t.Type, env)
}

// NewTask builds a worker-side task carrying payload.
func NewTask(taskType string, payload any) *asynq.Task {
	data, _ := json.Marshal(payload)
	return Task{Type: taskType, Payload: data}.Asynq()
}
