// Package stream provides the event streams supervised workers produce.
//
// A Stream is a plain function: running it subscribes, every event is pushed
// through emit, and the function returns once the stream is over. A nil error
// means the stream completed, any other error means it failed. Cancelling the
// context unsubscribes; a cancelled stream must stop emitting and return
// promptly, and whatever it returns afterwards is ignored.
//
// Streams are lazy and carry no state between runs: running the same Stream
// twice starts two independent subscriptions.
//
// emit must only be called from the goroutine running the stream and never
// after the stream returned.
package stream
