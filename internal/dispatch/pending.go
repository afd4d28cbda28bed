package dispatch

import "time"

// pendingKey identifies an in-flight invoke by the repeater connection it
// was forwarded to and the request_id it carries, per spec.md §3 ("Pending
// request... indexed by (repeater_connection, request_id)").
type pendingKey struct {
	repeaterConnID string
	requestID      string
}

// pendingEntry is the dispatcher's record of one in-flight invoke.
type pendingEntry struct {
	agentConnID string
	action      string
	deadline    time.Time
}

// pendingTable is the dispatcher's pending-request map, one of the two
// pieces of state shared across all connections (the other being the
// action directory).
type pendingTable struct {
	entries map[pendingKey]pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[pendingKey]pendingEntry)}
}

func (t *pendingTable) put(k pendingKey, e pendingEntry) {
	t.entries[k] = e
}

func (t *pendingTable) take(k pendingKey) (pendingEntry, bool) {
	e, ok := t.entries[k]
	if ok {
		delete(t.entries, k)
	}
	return e, ok
}

// removeByRepeater deletes and returns every entry rooted at repeaterConnID,
// used when that repeater connection is lost.
func (t *pendingTable) removeByRepeater(repeaterConnID string) []pendingEntry {
	var out []pendingEntry
	for k, e := range t.entries {
		if k.repeaterConnID == repeaterConnID {
			out = append(out, e)
			delete(t.entries, k)
		}
	}
	return out
}

// removeByAgent deletes every entry whose originating agent connection is
// agentConnID, used when that agent connection is lost (spec.md §4.8 step
// 7: "every pending request originating there is forgotten").
func (t *pendingTable) removeByAgent(agentConnID string) {
	for k, e := range t.entries {
		if e.agentConnID == agentConnID {
			delete(t.entries, k)
		}
	}
}

// sweepExpired deletes and returns every entry whose deadline is before
// now.
func (t *pendingTable) sweepExpired(now time.Time) map[pendingKey]pendingEntry {
	expired := make(map[pendingKey]pendingEntry)
	for k, e := range t.entries {
		if e.deadline.Before(now) {
			expired[k] = e
			delete(t.entries, k)
		}
	}
	return expired
}

// drainAll empties the table and returns every entry it held, used by
// disengage to fail whatever was still in flight (spec.md §4.9).
func (t *pendingTable) drainAll() map[pendingKey]pendingEntry {
	out := t.entries
	t.entries = make(map[pendingKey]pendingEntry)
	return out
}

// len reports the number of pending entries, for metrics.
func (t *pendingTable) len() int {
	return len(t.entries)
}
