package loader

import "github.com/Sternrassler/storefront/pkg/catalog"

// Outcome is the result of one trigger.
type Outcome string

const (
	// OutcomeIgnored means no fetch was issued: one was in flight or the list is exhausted.
	OutcomeIgnored Outcome = "ignored"

	// OutcomeLoaded means a fetch completed and its items were appended.
	OutcomeLoaded Outcome = "loaded"

	// OutcomeFailed means a fetch failed and the list is unchanged.
	OutcomeFailed Outcome = "failed"
)

// ListState is the state of an incrementally loaded list.
//
// Invariants while no fetch is in flight:
//   - len(Items) == NextOffset
//   - HasMore is false once a fetch returned fewer items than the page size
type ListState struct {
	// Items in fetch order, append-only
	Items []catalog.Item

	// NextOffset is the offset of the next window to fetch
	NextOffset int

	IsLoading bool
	HasMore   bool
}

// Result describes one trigger.
type Result struct {
	Outcome Outcome

	// Offset the fetch was issued for (zero when ignored)
	Offset int

	// Items appended by this trigger
	Items []catalog.Item

	// HasMore after the trigger
	HasMore bool
}
