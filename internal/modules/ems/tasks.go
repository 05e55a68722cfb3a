package ems

import (
	"context"
	"sync"
)

// taskManager следит за долгоживущими задачами алгоритмов: одна задача на
// algo-ордер, отмена по требованию (CANCEL_*) или при остановке сервиса.
type taskManager struct {
	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newTaskManager() *taskManager {
	return &taskManager{tasks: make(map[string]*task)}
}

// add регистрирует задачу и отдаёт её контекст и завершатель.
func (tm *taskManager) add(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}

	tm.mu.Lock()
	tm.tasks[id] = t
	tm.mu.Unlock()

	var once sync.Once
	finish := func() {
		once.Do(func() {
			close(t.done)
			cancel()
			tm.mu.Lock()
			delete(tm.tasks, id)
			tm.mu.Unlock()
		})
	}
	return ctx, finish
}

// cancel шлёт задаче сигнал отмены и ждёт, пока она отработает wind-down.
func (tm *taskManager) cancelWait(id string) bool {
	tm.mu.Lock()
	t, ok := tm.tasks[id]
	tm.mu.Unlock()
	if !ok {
		return false
	}

	t.cancel()
	<-t.done
	return true
}

func (tm *taskManager) shutdown() {
	tm.mu.Lock()
	all := make([]*task, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		all = append(all, t)
	}
	tm.mu.Unlock()

	for _, t := range all {
		t.cancel()
	}
	for _, t := range all {
		<-t.done
	}
}

func (tm *taskManager) running(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.tasks[id]
	return ok
}
