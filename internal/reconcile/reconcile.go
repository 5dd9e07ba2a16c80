// Package reconcile merges the two independent listing endpoints into one
// coherent task set. The merge is recomputed from scratch on every poll
// cycle; nothing here mutates tasks across cycles, which is what makes
// concurrent user mutations tolerable without locking.
package reconcile

import "pyloadwatch/internal/domain"

// Merge unions the active listing with the queue listing by task id. Every
// task from the active listing is kept; a queue task joins only when no task
// with the same id is already present, so the active listing wins ties.
// Insertion order is preserved. Tasks are partitioned by the completion rule
// (finished-equivalent status or percent == 100) and the total download
// speed is summed over the active partition only.
func Merge(activeListing, queueListing []domain.Task) domain.Snapshot {
	seen := make(map[string]struct{}, len(activeListing))
	merged := make([]domain.Task, 0, len(activeListing)+len(queueListing))

	for _, task := range activeListing {
		merged = append(merged, task)
		seen[task.ID] = struct{}{}
	}
	for _, task := range queueListing {
		if _, dup := seen[task.ID]; dup {
			continue
		}
		merged = append(merged, task)
		seen[task.ID] = struct{}{}
	}

	snapshot := domain.Snapshot{
		Active:    []domain.Task{},
		Completed: []domain.Task{},
	}
	for _, task := range merged {
		if task.IsCompleted() {
			snapshot.Completed = append(snapshot.Completed, task)
		} else {
			snapshot.Active = append(snapshot.Active, task)
			snapshot.TotalSpeed += task.Speed
		}
	}
	return snapshot
}
