package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corey/tally/internal/ports"
)

// defaultUploadDebounce is the quiet period required before an upload runs.
const defaultUploadDebounce = 30 * time.Second

// uploadScheduler debounces and serializes the background upload. Every data
// publish calls Kick, which (re)arms a timer; the upload runs only after a
// full debounce interval of quiescence. At most one upload is ever in
// flight: a Kick landing mid-upload marks it pending, and exactly one
// follow-up upload runs after the current one completes.
type uploadScheduler struct {
	sink     ports.UploadSink
	corpus   func() ([]ports.NormalizedMessage, error)
	debounce time.Duration
	log      *slog.Logger
	onDone   func() // republishes so readers see the new status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	pending  bool
	status   ports.UploadStatus
}

func newUploadScheduler(sink ports.UploadSink, corpus func() ([]ports.NormalizedMessage, error), debounce time.Duration, log *slog.Logger, onDone func()) *uploadScheduler {
	if debounce <= 0 {
		debounce = defaultUploadDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &uploadScheduler{
		sink:     sink,
		corpus:   corpus,
		debounce: debounce,
		log:      log,
		onDone:   onDone,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Kick notes that data changed and (re)starts the quiescence clock.
func (u *uploadScheduler) Kick() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status.State == ports.UploadIdle {
		u.status.State = ports.UploadWaiting
	}
	if u.timer == nil {
		u.timer = time.AfterFunc(u.debounce, u.fire)
	} else {
		u.timer.Reset(u.debounce)
	}
}

// CurrentStatus returns a copy of the upload status.
func (u *uploadScheduler) CurrentStatus() ports.UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Stop cancels any in-flight upload and waits for it to finish. The
// aggregates are untouched either way — uploads are read-only.
func (u *uploadScheduler) Stop() {
	u.mu.Lock()
	if u.timer != nil {
		u.timer.Stop()
	}
	u.mu.Unlock()
	u.cancel()
	u.wg.Wait()
}

func (u *uploadScheduler) fire() {
	u.mu.Lock()
	if u.inFlight {
		// Already uploading; run once more after it completes.
		u.pending = true
		u.mu.Unlock()
		return
	}
	u.inFlight = true
	u.status.State = ports.UploadInFlight
	u.mu.Unlock()

	u.wg.Add(1)
	go u.run()
}

func (u *uploadScheduler) run() {
	defer u.wg.Done()

	msgs, err := u.corpus()
	if err == nil {
		err = u.sink.Upload(u.ctx, msgs)
	}

	u.mu.Lock()
	u.inFlight = false
	if err != nil {
		u.status.State = ports.UploadFailed
		u.status.LastError = err.Error()
		u.status.Failures++
		u.log.Warn("upload failed", "err", err)
	} else {
		u.status.State = ports.UploadIdle
		u.status.LastError = ""
		u.status.LastOK = time.Now()
		u.status.Uploads++
	}
	rerun := u.pending
	u.pending = false
	u.mu.Unlock()

	if u.onDone != nil {
		u.onDone()
	}

	if rerun && u.ctx.Err() == nil {
		u.fire()
	}
}
