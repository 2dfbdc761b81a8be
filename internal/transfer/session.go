// Package transfer writes payloads larger than one GATT write, packet by
// packet, with per-packet timeout, retry and optional notification acks.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitaminmoo/blexfer/internal/config"
	"github.com/vitaminmoo/blexfer/internal/protocol"
)

// State of a Session.
type State int

const (
	// Idle is a session that has not written anything yet.
	Idle State = iota
	// Sending waits for the local completion of the current write.
	Sending
	// WaitingAck waits for the notification that acknowledges the current packet.
	WaitingAck
	// Retrying waits out the inter-packet delay before resending the current packet.
	Retrying
	// Completed is terminal: every packet was acknowledged.
	Completed
	// Failed is terminal: a packet ran out of tries.
	Failed
	// Cancelled is terminal: Cancel was called.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case WaitingAck:
		return "waiting-ack"
	case Retrying:
		return "retrying"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Options configures one transfer.
type Options struct {
	PacketSize       int
	InterPacketDelay time.Duration
	PerPacketTimeout time.Duration
	// MaxTryCount is the number of retries per packet after the first send.
	MaxTryCount int
	Ack         AckPolicy
}

// DefaultOptions returns config.DefaultTransfer with local-completion acks.
func DefaultOptions() Options {
	d := config.DefaultTransfer
	return Options{
		PacketSize:       d.PacketSize,
		InterPacketDelay: d.InterPacketDelay,
		PerPacketTimeout: d.PerPacketTimeout,
		MaxTryCount:      d.MaxTryCount,
		Ack:              LocalCompletionOnly(),
	}
}

func (o Options) validate(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if o.PacketSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPacketSize, o.PacketSize)
	}
	if o.MaxTryCount < 0 {
		return fmt.Errorf("%w: negative max try count %d", ErrInvalidOptions, o.MaxTryCount)
	}
	if o.InterPacketDelay < 0 {
		return fmt.Errorf("%w: negative inter-packet delay %s", ErrInvalidOptions, o.InterPacketDelay)
	}
	if o.PerPacketTimeout <= 0 {
		return fmt.Errorf("%w: per-packet timeout must be positive", ErrInvalidOptions)
	}
	if o.Ack.Mode == AckNotification && o.Ack.Verify == nil {
		return fmt.Errorf("%w: notification ack without a verifier", ErrInvalidOptions)
	}
	return nil
}

// Sender owns a GattLink and runs at most one Session on it at a time.
type Sender struct {
	link GattLink

	mu     sync.Mutex
	active *Session
}

// NewSender creates a Sender for link.
func NewSender(link GattLink) *Sender {
	return &Sender{link: link}
}

// Active returns the running session, or nil.
func (s *Sender) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Sender) release(sess *Session) {
	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()
}

// Send starts transferring payload. Invalid options and a busy link fail
// immediately: OnStartFailed fires and the error is returned.
// The payload is copied.
func (s *Sender) Send(payload []byte, opts Options, cb Callbacks) (*Session, error) {
	if err := opts.validate(payload); err != nil {
		return nil, startFailed(cb, err)
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, startFailed(cb, ErrBusy)
	}
	sess := newSession(s, payload, opts, cb)
	s.active = sess
	s.mu.Unlock()

	if opts.Ack.Mode == AckNotification {
		if err := s.link.EnableNotifications(sess.onNotification); err != nil {
			s.release(sess)
			return nil, startFailed(cb, fmt.Errorf("failed to enable notifications: %w", err))
		}
	}

	config.Debugf("Transfer started: %d bytes in %d packets of %d (ack %s)", len(sess.payload), sess.total, opts.PacketSize, opts.Ack.Mode)
	if cb.OnSendStarted != nil && !sess.cancelled() {
		cb.OnSendStarted(sess.total)
	}

	go sess.run()
	return sess, nil
}

func startFailed(cb Callbacks, err error) error {
	config.Debugf("Transfer not started: %v", err)
	if cb.OnStartFailed != nil {
		cb.OnStartFailed(err)
	}
	return err
}

type timerPhase int

const (
	phaseNone timerPhase = iota
	phaseWrite
	phaseNotify
	phaseDelay
)

type writeResult struct {
	attempt int
	err     error
}

// Session is one transfer. All transitions run on a single goroutine; write
// completions and notifications are handed to it over channels.
type Session struct {
	sender  *Sender
	link    GattLink
	payload []byte
	opts    Options
	cb      Callbacks
	total   int

	writeC     chan writeResult
	notifyC    chan []byte
	cancelC    chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	mu    sync.Mutex
	state State
	index int
	tries int
	err   error

	// owned by the run goroutine
	attempt  int
	timer    *time.Timer
	timerC   <-chan time.Time
	phase    timerPhase
	held     []byte
	haveHeld bool
}

func newSession(sender *Sender, payload []byte, opts Options, cb Callbacks) *Session {
	p := append([]byte(nil), payload...)
	return &Session{
		sender:  sender,
		link:    sender.link,
		payload: p,
		opts:    opts,
		cb:      cb,
		total:   protocol.PacketCount(len(p), opts.PacketSize),
		writeC:  make(chan writeResult, 8),
		notifyC: make(chan []byte, 16),
		cancelC: make(chan struct{}),
		done:    make(chan struct{}),
		state:   Idle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the number of acknowledged packets and the packet total.
func (s *Session) Progress() (index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.total
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error: nil after Completed, a *TransferError after
// Failed, ErrCancelled after Cancelled. It is nil while the session runs.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session ends. Cancelling ctx cancels the session.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Cancel()
		<-s.done
	}
	return s.Err()
}

// Cancel stops the session. No callbacks fire after Cancel returns, except
// one already running. Cancel is safe to call more than once and from
// callbacks.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelC)
	})
}

func (s *Session) cancelled() bool {
	select {
	case <-s.cancelC:
		return true
	default:
		return false
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) current() protocol.Packet {
	return protocol.PacketAt(s.payload, s.opts.PacketSize, s.index)
}

// emit runs fn unless the session was cancelled.
func (s *Session) emit(fn func()) {
	if s.cancelled() {
		return
	}
	fn()
}

func (s *Session) onWriteDone(attempt int) func(err error) {
	return func(err error) {
		select {
		case s.writeC <- writeResult{attempt: attempt, err: err}:
		case <-s.done:
		}
	}
}

func (s *Session) onNotification(data []byte) {
	buf := append([]byte(nil), data...)
	select {
	case s.notifyC <- buf:
	case <-s.done:
	default:
		config.Debugf("Notification dropped, queue full (%d bytes)", len(buf))
	}
}

func (s *Session) run() {
	defer s.finish()

	s.sendCurrent()

	for !s.State().Terminal() {
		if s.cancelled() {
			s.stop(Cancelled, ErrCancelled)
			return
		}

		select {
		case <-s.cancelC:
			s.stop(Cancelled, ErrCancelled)
			return
		case res := <-s.writeC:
			s.handleWrite(res)
		case data := <-s.notifyC:
			s.handleNotification(data)
		case <-s.timerC:
			s.handleTimer()
		}
	}
}

func (s *Session) stop(st State, err error) {
	s.stopTimer()
	s.mu.Lock()
	s.state = st
	s.err = err
	s.mu.Unlock()
	config.Debugf("Transfer %s", st)
}

func (s *Session) finish() {
	s.stopTimer()
	if s.opts.Ack.Mode == AckNotification {
		if err := s.link.EnableNotifications(nil); err != nil {
			config.Debugf("Failed to disable notifications: %v", err)
		}
	}
	s.sender.release(s)
	close(s.done)
}

func (s *Session) startTimer(d time.Duration, phase timerPhase) {
	s.stopTimer()
	s.timer = time.NewTimer(d)
	s.timerC = s.timer.C
	s.phase = phase
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.timerC = nil
	s.phase = phaseNone
}

// sendCurrent writes the current packet. After Cancel nothing is written and
// the run loop stops the session.
func (s *Session) sendCurrent() {
	if s.cancelled() {
		return
	}
	pkt := s.current()
	s.attempt++
	s.held, s.haveHeld = nil, false
	s.setState(Sending)
	s.startTimer(s.opts.PerPacketTimeout, phaseWrite)

	config.Debugf("Writing packet %d/%d (%d bytes, attempt %d)", pkt.Index+1, pkt.Total, len(pkt.Data), s.tries+1)
	if err := s.link.Write(pkt.Data, s.onWriteDone(s.attempt)); err != nil {
		s.fail(CauseWriteFailed, err)
	}
}

func (s *Session) handleWrite(res writeResult) {
	if res.attempt != s.attempt || s.State() != Sending || s.phase != phaseWrite {
		config.Debugf("Ignoring stale write completion (attempt %d)", res.attempt)
		return
	}
	if res.err != nil {
		s.fail(CauseWriteFailed, res.err)
		return
	}
	if s.opts.Ack.Mode == AckLocal {
		s.ack()
		return
	}

	s.setState(WaitingAck)
	s.startTimer(s.opts.PerPacketTimeout, phaseNotify)
	if s.haveHeld {
		data := s.held
		s.held, s.haveHeld = nil, false
		s.verify(data)
	}
}

func (s *Session) handleNotification(data []byte) {
	if s.opts.Ack.Mode != AckNotification {
		return
	}
	switch {
	case s.State() == WaitingAck:
		s.verify(data)
	case s.State() == Sending && s.phase == phaseWrite && !s.haveHeld:
		// arrived ahead of the local write completion
		s.held, s.haveHeld = data, true
	default:
		config.Debugf("Ignoring notification in state %s (%d bytes)", s.State(), len(data))
	}
}

func (s *Session) handleTimer() {
	phase := s.phase
	s.stopTimer()

	switch phase {
	case phaseDelay:
		s.sendCurrent()
	case phaseWrite, phaseNotify:
		s.fail(CauseTimeout, ErrTimeout)
	}
}

func (s *Session) verify(data []byte) {
	s.stopTimer()
	pkt := s.current()
	ok := s.opts.Ack.Verify(Notification{
		Data:   data,
		Packet: pkt.Data,
		Index:  pkt.Index,
		Total:  pkt.Total,
	})
	if ok {
		s.ack()
		return
	}
	s.fail(CauseWrongNotify, ErrWrongNotify)
}

func (s *Session) ack() {
	s.stopTimer()
	pkt := s.current()
	s.emit(func() {
		if s.cb.OnProgress != nil {
			s.cb.OnProgress(pkt.Index, pkt.Total, pkt.Data)
		}
	})

	s.mu.Lock()
	s.index++
	s.tries = 0
	index := s.index
	s.mu.Unlock()

	if index == s.total {
		if s.cancelled() {
			return
		}
		if s.cb.OnSendFinished != nil {
			s.cb.OnSendFinished()
		}
		s.stop(Completed, nil)
		return
	}

	s.setState(Sending)
	s.startTimer(s.opts.InterPacketDelay, phaseDelay)
}

func (s *Session) fail(cause Cause, err error) {
	s.stopTimer()
	pkt := s.current()

	s.mu.Lock()
	s.tries++
	tries := s.tries
	s.mu.Unlock()

	config.Debugf("Packet %d/%d: %s (try %d of %d): %v", pkt.Index+1, pkt.Total, cause, tries, s.opts.MaxTryCount+1, err)

	if cause == CauseTimeout {
		s.emit(func() {
			if s.cb.OnTimeout != nil {
				s.cb.OnTimeout(pkt.Index, pkt.Total, pkt.Data)
			}
		})
	}

	if tries <= s.opts.MaxTryCount {
		s.emit(func() { s.retryCallback(cause, tries, pkt) })
		s.setState(Retrying)
		s.startTimer(s.opts.InterPacketDelay, phaseDelay)
		return
	}

	if s.cancelled() {
		return
	}
	s.failedCallback(cause, pkt)
	s.stop(Failed, &TransferError{
		Cause: cause,
		Index: pkt.Index,
		Total: pkt.Total,
		Tries: tries,
		Err:   err,
	})
}

func (s *Session) retryCallback(cause Cause, tries int, pkt protocol.Packet) {
	switch cause {
	case CauseWriteFailed:
		if s.cb.OnPacketFailedAndRetry != nil {
			s.cb.OnPacketFailedAndRetry(pkt.Index, pkt.Total, tries, pkt.Data)
		}
	case CauseTimeout:
		if s.cb.OnTimeoutAndRetry != nil {
			s.cb.OnTimeoutAndRetry(tries, pkt.Index, pkt.Total, pkt.Data)
		}
	case CauseWrongNotify:
		if s.cb.OnWrongNotifyAndRetry != nil {
			s.cb.OnWrongNotifyAndRetry(tries, pkt.Index, pkt.Total, pkt.Data)
		}
	}
}

func (s *Session) failedCallback(cause Cause, pkt protocol.Packet) {
	switch cause {
	case CauseWriteFailed:
		if s.cb.OnPacketFailed != nil {
			s.cb.OnPacketFailed(pkt.Index, pkt.Total, pkt.Data)
		}
	case CauseTimeout:
		if s.cb.OnDataSendFailed != nil {
			s.cb.OnDataSendFailed(pkt.Index, pkt.Total, pkt.Data)
		}
	case CauseWrongNotify:
		if s.cb.OnWrongNotify != nil {
			s.cb.OnWrongNotify(pkt.Index, pkt.Total, pkt.Data)
		}
	}
}
