// Package sender runs outbound Bot API calls on a small worker pool. Calls
// for one chat share a lane, so a flow's messages and edits reach Telegram
// in the order they were issued.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned once the dispatcher has been closed.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when the chat's lane is saturated.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Action names the Bot API method a job calls. It decides the retry
// policy: only idempotent actions are retried after a timeout.
type Action string

const (
	ActionSend   Action = "sendMessage"
	ActionEdit   Action = "editMessageText"
	ActionAnswer Action = "answerCallbackQuery"
)

func (a Action) idempotent() bool { return a != ActionSend }

// Options controls the dispatcher. Zero values get defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, retries included.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	chatID int64
	action Action
	run    func() error
	done   chan error
}

// Dispatcher executes Bot API calls asynchronously with retries.
type Dispatcher struct {
	opts  Options
	lanes []chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts opts.Workers lanes.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	opts.MaxRetries = max(opts.MaxRetries, 0)
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{opts: opts, lanes: make([]chan job, opts.Workers)}
	depth := max(opts.QueueSize/opts.Workers, 1)
	d.wg.Add(opts.Workers)
	for i := range d.lanes {
		d.lanes[i] = make(chan job, depth)
		go d.work(d.lanes[i])
	}
	return d
}

// Enqueue schedules run behind earlier jobs for chatID and returns
// without waiting. It fails fast with ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, chatID int64, action Action, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.lane(chatID) <- job{ctx: ctx, chatID: chatID, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do schedules run behind earlier jobs for chatID and waits for its
// result or for ctx to end.
func (d *Dispatcher) Do(ctx context.Context, chatID int64, action Action, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	if err := d.push(ctx, job{ctx: ctx, chatID: chatID, action: action, run: run, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) push(ctx context.Context, j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.lane(j.chatID) <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) lane(chatID int64) chan job {
	n := uint64(chatID) % uint64(len(d.lanes))
	return d.lanes[n]
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close runs the queued jobs and stops the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, l := range d.lanes {
			close(l)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work(lane chan job) {
	defer d.wg.Done()
	for j := range lane {
		err := d.execute(j)
		if j.done != nil {
			j.done <- err
		}
	}
}

func (d *Dispatcher) execute(j job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var (
		err     error
		attempt int
	)
	for attempt = 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = j.run(); err == nil {
			logger.Debug(ctx, "tg.sender", "send.success", j.attrs(attempt, start)...)
			return nil
		}
		wait, ok := d.retryDelay(j.action, err, attempt)
		if !ok || attempt == attempts {
			break
		}
		logger.Debug(ctx, "tg.sender", "send.retry", append(j.attrs(attempt, start), slog.Duration("backoff", wait))...)
		if err = sleep(ctx, wait); err != nil {
			break
		}
	}

	d.errs.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail", append(j.attrs(min(attempt, attempts), start),
		slog.String("err", logger.Clip(errText(err), 256)),
		slog.String("err_code", errorKind(err)),
	)...)
	return err
}

// retryDelay decides whether err is worth another attempt and how long to
// wait first. Telegram flood control dictates its own delay.
func (d *Dispatcher) retryDelay(action Action, err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return max(time.Duration(flood.RetryAfter)*time.Second, d.opts.RetryBackoff), true
	}
	backoff := d.opts.RetryBackoff * time.Duration(attempt)
	if netutil.NotSent(err) {
		return backoff, true
	}
	if action.idempotent() && netutil.ShouldRetry(err) {
		return backoff, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (j job) attrs(attempt int, start time.Time) []slog.Attr {
	return []slog.Attr{
		slog.String("op", string(j.action)),
		slog.Int64("chat_id", j.chatID),
		slog.Int("attempts", attempt),
		slog.Duration("duration", logger.Took(start)),
	}
}

func errText(err error) string {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return "flood control"
	}
	return err.Error()
}

// errorKind labels err by transport failure or Bot API status class.
func errorKind(err error) string {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return "flood"
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return "flood"
		case apiErr.Code >= 500:
			return "http_5xx"
		case apiErr.Code >= 400:
			return "http_4xx"
		}
	}
	if k := netutil.Classify(err); k != netutil.KindOther {
		return string(k)
	}
	return "unknown"
}
