package activations

import "time"

// PidAliveFunc reports whether pid currently refers to a live (non-zombie)
// process. Implemented by internal/procwatch for production use; tests
// supply a fake.
type PidAliveFunc func(pid int) bool

// Prune implements spec.md §4.1's prune: for every Activation, remove
// attachments whose pid is no longer alive, or whose expiration has
// elapsed AND whose pid is no longer alive (boundary behaviors B1/B2: a
// live pid is never pruned regardless of expiration).
//
// Iteration is in recorded insertion order (spec.md §9 Open Question:
// attachment prune ordering is part of the contract, not an implementation
// detail). Activations left with an empty attachment list are removed from
// the registry and returned in removedStartIDs.
func (c CheckedRegistry) Prune(now time.Time, pidAlive PidAliveFunc) (removedStartIDs []string, modified bool) {
	kept := c.reg.Activations[:0]
	for _, a := range c.reg.Activations {
		attachmentsKept := a.Attachments[:0]
		for _, at := range a.Attachments {
			// Removal depends only on liveness, never on expiration alone: a
			// live pid is kept even past its expiration (B1), and a dead pid
			// is removed even if its expiration hasn't arrived yet (B2).
			// Expiration only affects when the Process-Exit Observer starts
			// watching a pid (spec.md §4.2); it plays no role here.
			if !pidAlive(at.PID) {
				modified = true
				continue
			}
			attachmentsKept = append(attachmentsKept, at)
		}
		a.Attachments = attachmentsKept

		if len(a.Attachments) == 0 {
			removedStartIDs = append(removedStartIDs, a.StartID)
			modified = true
			continue
		}
		kept = append(kept, a)
	}
	c.reg.Activations = kept
	return removedStartIDs, modified
}
