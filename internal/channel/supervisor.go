package channel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parleybot/parley/internal/logging"
)

const (
	// reconnectBackoff is the fixed wait between connection attempts.
	reconnectBackoff = 5 * time.Second
	// stopPoll bounds shutdown latency: every sleep is sliced this fine.
	stopPoll = 100 * time.Millisecond
)

// ErrAlreadyRunning is returned when Start is called on a live supervisor.
var ErrAlreadyRunning = errors.New("channel: supervisor already running")

// Supervisor owns the reconnect policy shared by all persistent transports:
// run one connection attempt, wait a fixed backoff, repeat until stopped.
// There is no exponential growth and no retry cap; operators observe
// repeated failures through logs and health checks, not termination.
type Supervisor struct {
	name    string
	backoff time.Duration
	log     *logging.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor for the named transport.
func NewSupervisor(name string, log *logging.Logger) *Supervisor {
	return &Supervisor{name: name, backoff: reconnectBackoff, log: log}
}

// Start launches the reconnect loop in a background goroutine. attempt runs
// a single connection attempt (handshake plus steady-state receive loop)
// and returns when the connection ends, cleanly or not.
func (s *Supervisor) Start(attempt func() error) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for s.running.Load() {
			if err := attempt(); err != nil {
				s.log.Warn().Err(err).Str("channel", s.name).Msg("connection attempt ended")
			}
			if !s.running.Load() {
				return
			}
			s.log.Debug().Str("channel", s.name).Dur("backoff", s.backoff).Msg("reconnecting after backoff")
			if !s.Sleep(s.backoff) {
				return
			}
		}
	}()
	return nil
}

// Stop clears the running flag, invokes interrupt to unblock a read parked
// in a syscall (typically by closing the socket), and joins the loop.
// Idempotent.
func (s *Supervisor) Stop(interrupt func()) {
	s.running.Store(false)
	if interrupt != nil {
		interrupt()
	}
	s.wg.Wait()
}

// Running reports whether the supervisor loop is (still) wanted.
func (s *Supervisor) Running() bool { return s.running.Load() }

// Sleep pauses for d, re-checking the running flag every slice so a stop
// request interrupts the pause promptly. Returns false if stop was
// requested before the full duration elapsed.
func (s *Supervisor) Sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for s.running.Load() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > stopPoll {
			remaining = stopPoll
		}
		time.Sleep(remaining)
	}
	return false
}
