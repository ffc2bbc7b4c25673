// Package loader implements incremental list loading for infinite-scroll views.
//
// A Loader holds the items shown so far and fetches the next window of a
// collection each time the host reports that the end of the list became
// visible. It is a two-state gate: while one fetch is in flight, further
// triggers are ignored, never queued. A page shorter than the page size ends
// the list; after that triggers are ignored until Reset.
//
//	l, err := loader.New(client.Products(0), firstPage, 12)
//	outcome, err := l.Trigger(ctx) // on every "sentinel visible" signal
//
// A failed fetch leaves the list untouched and reopens the gate; the next
// visibility signal retries naturally. The loader itself never retries or polls.
package loader
