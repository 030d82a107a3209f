// merge.go — anchor-preserving list reconciliation.
//
// A bounded window of threads is shown per workspace, but some threads must
// survive every refresh regardless of rank: the one the user is viewing, any
// thread mid-turn, and the ancestors of anything shown. The merge is a pure
// function so the policy can be tested without a store.
package threadstate

// MergeVisibleThreads reconciles a freshly computed list with the previous
// one. Threads in incoming are kept as-is; then each anchor id — activeID,
// every id in processing, and the full parent chain of every included id —
// that is missing from the result but present in prev is appended with its
// timestamp freshened to max(own updatedAt, activity floor, processing start).
// Timestamps are never lowered.
//
// processing maps thread id → processingStartedAt millis (presence = the
// thread is mid-turn). activity maps thread id → last-known-activity millis.
func MergeVisibleThreads(prev, incoming []Thread, activeID string, processing map[string]int64, parentOf map[string]string, activity map[string]int64) []Thread {
	result := make([]Thread, len(incoming))
	copy(result, incoming)

	included := make(map[string]struct{}, len(result))
	for _, th := range result {
		included[th.ID] = struct{}{}
	}
	prevByID := make(map[string]Thread, len(prev))
	for _, th := range prev {
		prevByID[th.ID] = th
	}

	freshen := func(th Thread) Thread {
		ts := th.UpdatedAt
		if floor, ok := activity[th.ID]; ok && floor > ts {
			ts = floor
		}
		if start, ok := processing[th.ID]; ok && start > ts {
			ts = start
		}
		th.UpdatedAt = ts
		return th
	}

	appendAnchor := func(id string) {
		if id == "" {
			return
		}
		if _, ok := included[id]; ok {
			return
		}
		th, ok := prevByID[id]
		if !ok {
			return
		}
		result = append(result, freshen(th))
		included[id] = struct{}{}
	}

	appendAnchor(activeID)
	// Preserve order of the previous list for processing anchors.
	for _, th := range prev {
		if _, ok := processing[th.ID]; ok {
			appendAnchor(th.ID)
		}
	}

	// Ancestor chains of everything now included, cycle-guarded. Appended
	// ancestors have their own chains walked too.
	visited := make(map[string]struct{}, len(result))
	for i := 0; i < len(result); i++ {
		for id := parentOf[result[i].ID]; id != ""; id = parentOf[id] {
			if _, seen := visited[id]; seen {
				break
			}
			visited[id] = struct{}{}
			appendAnchor(id)
		}
	}

	return result
}
