package streamdeck

import "sync"

// Dispatcher runs submitted work in FIFO order per key, with keys processed
// independently of each other. A worker for a key that was finished and then
// reused starts only after the previous worker drained.
type Dispatcher struct {
	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	mu      sync.Mutex
	pending []func()
	done    bool
	wake    chan struct{}
	exited  chan struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{workers: map[string]*worker{}}
}

// Submit queues fn behind earlier work for key. It reports false once the
// dispatcher is closed.
func (d *Dispatcher) Submit(key string, fn func()) bool {
	return d.enqueue(key, fn, false)
}

// Finish queues fn as the last item for key; the worker exits after running it.
func (d *Dispatcher) Finish(key string, fn func()) bool {
	return d.enqueue(key, fn, true)
}

// Close stops accepting work and waits for queued work to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		w.finish()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Active is the number of keys with a running worker.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) enqueue(key string, fn func(), last bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	w, ok := d.workers[key]
	if !ok || w.isDone() {
		var after <-chan struct{}
		if ok {
			after = w.exited
		}
		w = &worker{wake: make(chan struct{}, 1), exited: make(chan struct{})}
		d.workers[key] = w
		d.wg.Add(1)
		go d.run(key, w, after)
	}

	w.push(fn)
	if last {
		w.finish()
	}
	return true
}

func (d *Dispatcher) run(key string, w *worker, after <-chan struct{}) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		if d.workers[key] == w {
			delete(d.workers, key)
		}
		d.mu.Unlock()
		close(w.exited)
	}()

	if after != nil {
		<-after
	}
	for {
		fn, ok := w.next()
		if !ok {
			return
		}
		fn()
	}
}

func (w *worker) push(fn func()) {
	w.mu.Lock()
	w.pending = append(w.pending, fn)
	w.mu.Unlock()
	w.signal()
}

func (w *worker) finish() {
	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
	w.signal()
}

func (w *worker) isDone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// next blocks until work is available. It reports false once the worker is
// done and drained.
func (w *worker) next() (func(), bool) {
	for {
		w.mu.Lock()
		if len(w.pending) > 0 {
			fn := w.pending[0]
			w.pending[0] = nil
			w.pending = w.pending[1:]
			w.mu.Unlock()
			return fn, true
		}
		done := w.done
		w.mu.Unlock()
		if done {
			return nil, false
		}
		<-w.wake
	}
}
