package connection

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle submits commands to a connection runtime and reads its state. It is
// safe for concurrent use. Clone gives an independent handle on the same
// runtime; the runtime shuts down once every handle has been closed.
type Handle struct {
	queue  *commandQueue
	cell   *stateCell
	done   <-chan struct{}
	closed atomic.Bool
}

// commandQueue is the bounded queue shared by all handles of one runtime.
// The channel is closed when the last handle closes.
type commandQueue struct {
	ch chan request

	mu      sync.RWMutex
	senders int
	closed  bool
}

func newHandle(ch chan request, cell *stateCell, done <-chan struct{}) *Handle {
	return &Handle{
		queue: &commandQueue{ch: ch, senders: 1},
		cell:  cell,
		done:  done,
	}
}

func (q *commandQueue) acquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.senders++
	return true
}

func (q *commandQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.senders--
	if q.senders == 0 && !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// send enqueues req, blocking while the queue is full.
func (q *commandQueue) send(ctx context.Context, req request, done <-chan struct{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrHandleClosed
	}
	select {
	case <-done:
		return ErrRuntimeGone
	default:
	}

	select {
	case q.ch <- req:
		return nil
	case <-done:
		return ErrRuntimeGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clone returns a new handle on the same runtime.
func (h *Handle) Clone() (*Handle, error) {
	if h.closed.Load() || !h.queue.acquire() {
		return nil, ErrHandleClosed
	}
	return &Handle{queue: h.queue, cell: h.cell, done: h.done}, nil
}

// Close releases this handle. Closing the last handle closes the command
// queue, which makes a running runtime shut down. Close is idempotent.
func (h *Handle) Close() {
	if h.closed.CompareAndSwap(false, true) {
		h.queue.release()
	}
}

// Status returns the latest state without waiting on the runtime.
func (h *Handle) Status() Snapshot {
	return h.cell.load()
}

// Done is closed once the runtime has exited and the agent has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Submit sends cmd and waits for its reply. The error is non-nil only when
// the command never got a reply: the handle is closed, the runtime is gone,
// or ctx ended first. A command whose wait is abandoned still runs to
// completion.
func (h *Handle) Submit(ctx context.Context, cmd Command) (Reply, error) {
	if h.closed.Load() {
		return Reply{}, ErrHandleClosed
	}

	req := newRequest(cmd)
	if err := h.queue.send(ctx, req, h.done); err != nil {
		return Reply{}, err
	}

	select {
	case reply := <-req.reply:
		return reply, nil
	case <-h.done:
		select {
		case reply := <-req.reply:
			return reply, nil
		default:
			return Reply{}, ErrRuntimeGone
		}
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (h *Handle) call(ctx context.Context, cmd Command) (Reply, error) {
	reply, err := h.Submit(ctx, cmd)
	if err != nil {
		return reply, err
	}
	return reply, reply.Err
}

// Shutdown stops the runtime and the agent.
func (h *Handle) Shutdown(ctx context.Context) error {
	_, err := h.call(ctx, Shutdown{})
	return err
}

// NewSession creates an ACP session and returns its id. An empty cwd uses
// the configured working directory.
func (h *Handle) NewSession(ctx context.Context, cwd string) (string, error) {
	reply, err := h.call(ctx, NewSession{Cwd: cwd})
	return reply.SessionID, err
}

// Prompt sends text to the active session and returns the stop reason.
func (h *Handle) Prompt(ctx context.Context, text string) (string, error) {
	reply, err := h.call(ctx, Prompt{Text: text})
	return reply.StopReason, err
}

// Cancel asks the agent to end the active session's current turn.
func (h *Handle) Cancel(ctx context.Context) error {
	_, err := h.call(ctx, Cancel{})
	return err
}
