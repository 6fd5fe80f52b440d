package sysmsg

// SystemMessage is a notification posted by a worker subscription into its supervisor's mailbox.
type SystemMessage interface {
	systemMessage()
}

// Reason tells why a worker stream stopped on its own.
type Reason string

const (
	// Normal means the worker stream completed
	Normal Reason = "normal"
	// Error means the worker stream returned an error
	Error Reason = "error"
	// Panic means the worker stream panicked and the panic was recovered
	Panic Reason = "panic"
)

// Next carries a single event emitted by a worker
type Next struct {
	// Who is the subscription that emitted the event
	Who interface{}
	Value interface{}
}

func (n Next) systemMessage() {}

// Exit describes a worker stream that returned, either normally or with an error
type Exit struct {
	// Who is the subscription whose stream returned
	Who    interface{}
	Reason Reason
	// Err is nil for a Normal exit
	Err error
}

func (e Exit) systemMessage() {}

// Call asks the supervisor's delivery loop to run Fn
type Call struct {
	Fn func()
}

func (c Call) systemMessage() {}
