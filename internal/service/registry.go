package service

import (
	"context"
	"sync"
)

// Registry tracks running bulk job goroutines within this process. It exists
// so shutdown can stop every runner and wait for them to reach a checkpoint,
// and so a job id is never executed twice concurrently by one process.
type Registry struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		running: make(map[string]context.CancelFunc),
	}
}

func registryKey(tenant, id string) string {
	return tenant + "/" + id
}

// Begin registers a job as running and returns the context its runner must
// use plus a done function the runner must call on exit. ok is false when the
// job is already running in this process or the registry is shut down.
func (r *Registry) Begin(tenant, id string) (ctx context.Context, done func(), ok bool) {
	key := registryKey(tenant, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, false
	}
	if _, exists := r.running[key]; exists {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.running[key] = cancel
	r.wg.Add(1)

	var once sync.Once
	done = func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.running, key)
			r.mu.Unlock()
			cancel()
			r.wg.Done()
		})
	}
	return ctx, done, true
}

// Running reports whether the job is currently executing in this process.
func (r *Registry) Running(tenant, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[registryKey(tenant, id)]
	return ok
}

// Len returns the number of running jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Shutdown cancels every running job and waits for the runners to exit, or
// for ctx to expire. After Shutdown no new jobs can begin.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.running {
		cancel()
	}
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
