// Package execlock provides the priority mutex that serializes every
// mutating reservation operation.
//
// Requests are granted by descending priority, FIFO among equal priority.
// A holder keeps the lock until it calls Release with its token, which may
// happen on a different goroutine than the one that acquired it.
package execlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	PriorityBackground = 0
	PriorityUser       = 1
)

var ErrNotHolder = errors.New("execlock: token does not hold the lock")

// Token identifies one granted request.
type Token string

type request struct {
	token    Token
	priority int
	granted  chan struct{}
}

type Lock struct {
	mu     sync.Mutex
	holder Token
	queue  []*request

	onWait func(priority int, waited time.Duration)
}

type Option func(*Lock)

// WithWaitObserver reports how long each granted request waited.
func WithWaitObserver(fn func(priority int, waited time.Duration)) Option {
	return func(l *Lock) { l.onWait = fn }
}

func New(opts ...Option) *Lock {
	l := &Lock{}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire enqueues a request and blocks until it is granted or ctx is done.
// A request cancelled while queued is withdrawn; once granted, the caller
// owns the lock and must Release it.
func (l *Lock) Acquire(ctx context.Context, priority int) (Token, error) {
	start := time.Now()
	req := &request{
		token:    Token(uuid.NewString()),
		priority: priority,
		granted:  make(chan struct{}),
	}

	l.mu.Lock()
	pos := len(l.queue)
	for i, q := range l.queue {
		if q.priority < priority {
			pos = i
			break
		}
	}
	l.queue = append(l.queue, nil)
	copy(l.queue[pos+1:], l.queue[pos:])
	l.queue[pos] = req
	l.grantLocked()
	l.mu.Unlock()

	select {
	case <-req.granted:
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-req.granted:
			// Granted concurrently with cancellation; caller owns it now.
			l.mu.Unlock()
			l.observe(priority, start)
			return req.token, nil
		default:
		}
		l.removeLocked(req)
		l.mu.Unlock()
		return "", ctx.Err()
	}
	l.observe(priority, start)
	return req.token, nil
}

// Release gives up the lock held by tok and hands it to the queue head.
func (l *Lock) Release(tok Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != tok || tok == "" {
		return ErrNotHolder
	}
	l.holder = ""
	l.grantLocked()
	return nil
}

// Do runs fn while holding the lock; the lock is released on every exit
// path, including a panic in fn.
func (l *Lock) Do(ctx context.Context, priority int, fn func(ctx context.Context) error) error {
	tok, err := l.Acquire(ctx, priority)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release(tok) }()
	return fn(ctx)
}

// Held reports whether some request currently holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder != ""
}

// Waiting returns the number of queued, not yet granted, requests.
func (l *Lock) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Lock) grantLocked() {
	if l.holder != "" || len(l.queue) == 0 {
		return
	}
	next := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.holder = next.token
	close(next.granted)
}

func (l *Lock) removeLocked(req *request) {
	for i, q := range l.queue {
		if q == req {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

func (l *Lock) observe(priority int, start time.Time) {
	if l.onWait != nil {
		l.onWait(priority, time.Since(start))
	}
}
