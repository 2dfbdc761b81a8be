package transfer

// Callbacks reports session progress. Every field is optional.
//
// OnStartFailed and OnSendStarted run on the goroutine calling Send. All other
// callbacks run on the session goroutine, in order, and stop once Cancel has
// been called. A callback must not block for long: the next packet waits for it.
type Callbacks struct {
	OnStartFailed func(err error)
	OnSendStarted func(total int)

	// OnProgress reports an acknowledged packet.
	OnProgress func(index, total int, data []byte)

	OnPacketFailedAndRetry func(index, total, tryCount int, data []byte)
	OnPacketFailed         func(index, total int, data []byte)

	// OnTimeout fires for every timeout, before the retry decision.
	OnTimeout         func(index, total int, data []byte)
	OnTimeoutAndRetry func(tryCount, index, total int, data []byte)
	OnDataSendFailed  func(index, total int, data []byte)

	OnWrongNotifyAndRetry func(tryCount, index, total int, data []byte)
	OnWrongNotify         func(index, total int, data []byte)

	OnSendFinished func()
}

// EventKind tags an Event.
type EventKind int

const (
	EventStartFailed EventKind = iota
	EventStarted
	EventProgress
	EventPacketFailedAndRetry
	EventPacketFailed
	EventTimeout
	EventTimeoutAndRetry
	EventDataSendFailed
	EventWrongNotifyAndRetry
	EventWrongNotify
	EventFinished
)

var eventKindNames = map[EventKind]string{
	EventStartFailed:          "start failed",
	EventStarted:              "started",
	EventProgress:             "progress",
	EventPacketFailedAndRetry: "write failed, retrying",
	EventPacketFailed:         "write failed",
	EventTimeout:              "timeout",
	EventTimeoutAndRetry:      "timeout, retrying",
	EventDataSendFailed:       "data send failed",
	EventWrongNotifyAndRetry:  "wrong notify data, retrying",
	EventWrongNotify:          "wrong notify data",
	EventFinished:             "finished",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further events follow this one.
func (k EventKind) Terminal() bool {
	switch k {
	case EventStartFailed, EventPacketFailed, EventDataSendFailed, EventWrongNotify, EventFinished:
		return true
	}
	return false
}

// Event is the channel form of a callback.
type Event struct {
	Kind  EventKind
	Index int
	Total int
	Try   int
	Data  []byte
	Err   error
}

// EventCallbacks returns Callbacks that forward every callback to ch.
// Sends block, so the reader sets the pace of the transfer.
func EventCallbacks(ch chan<- Event) Callbacks {
	return Callbacks{
		OnStartFailed: func(err error) {
			ch <- Event{Kind: EventStartFailed, Err: err}
		},
		OnSendStarted: func(total int) {
			ch <- Event{Kind: EventStarted, Total: total}
		},
		OnProgress: func(index, total int, data []byte) {
			ch <- Event{Kind: EventProgress, Index: index, Total: total, Data: data}
		},
		OnPacketFailedAndRetry: func(index, total, tryCount int, data []byte) {
			ch <- Event{Kind: EventPacketFailedAndRetry, Index: index, Total: total, Try: tryCount, Data: data}
		},
		OnPacketFailed: func(index, total int, data []byte) {
			ch <- Event{Kind: EventPacketFailed, Index: index, Total: total, Data: data}
		},
		OnTimeout: func(index, total int, data []byte) {
			ch <- Event{Kind: EventTimeout, Index: index, Total: total, Data: data}
		},
		OnTimeoutAndRetry: func(tryCount, index, total int, data []byte) {
			ch <- Event{Kind: EventTimeoutAndRetry, Index: index, Total: total, Try: tryCount, Data: data}
		},
		OnDataSendFailed: func(index, total int, data []byte) {
			ch <- Event{Kind: EventDataSendFailed, Index: index, Total: total, Data: data}
		},
		OnWrongNotifyAndRetry: func(tryCount, index, total int, data []byte) {
			ch <- Event{Kind: EventWrongNotifyAndRetry, Index: index, Total: total, Try: tryCount, Data: data}
		},
		OnWrongNotify: func(index, total int, data []byte) {
			ch <- Event{Kind: EventWrongNotify, Index: index, Total: total, Data: data}
		},
		OnSendFinished: func() {
			ch <- Event{Kind: EventFinished}
		},
	}
}
