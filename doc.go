// Package streamsup merges the event streams of several long running workers
// into a single stream, and supervises them the way an Erlang/OTP supervisor
// supervises its children.
//
// When a worker fails, the restart strategy decides which workers are torn
// down along with it (its fault chain). The configured Handler then gets a
// chance to recover; once it does, the fault chain is either restarted or
// retired, depending on the strategy. A Handler that fails ends the whole
// merged stream with an *ErrorContext that links back to the original failure.
//
//	root := streamsup.Supervise(
//		streamsup.Options[Input]{
//			Restart: supervisor.OneForOne,
//			OnError: func(ec *streamsup.ErrorContext, in Input) stream.Stream[any] {
//				return stream.Any(stream.Timer(time.Second))
//			},
//		},
//		streamsup.Func(pollFeeds),
//		streamsup.Func(indexDocuments),
//	)
//	err := root.Start(input)(ctx, publish)
//
// Combine is the zero configuration variant: nothing is ever restarted and a
// failing worker is logged and retired while its siblings keep running.
package streamsup
