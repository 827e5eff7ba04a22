// Package activations implements the State Store: the on-disk,
// lock-serialized registry of activations and their attached processes.
//
// Registry mutation always goes through CheckedRegistry, obtained from a
// raw Registry via CheckVersion. This mirrors the type-state pattern the
// original Rust implementation uses (Activations<CheckedVersion>): a
// registry whose schema hasn't been validated simply doesn't expose the
// methods that would let you corrupt it.
package activations

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the only activations.json schema this binary understands.
// Readers that encounter any other version fail loudly; there is no
// migration path (see spec Open Question: schema versioning).
const SchemaVersion = 1

// Attachment records one shell process attached to an Activation.
type Attachment struct {
	PID int `json:"pid"`
	// Expiration, if set, only affects when the Process-Exit Observer
	// begins watching this pid; a live pid is never pruned regardless of
	// expiration (boundary behaviors B1/B2 in spec.md).
	Expiration *time.Time `json:"expiration,omitempty"`
}

// Activation is one concrete build of an environment: the tuple
// (environment_path, store_path) plus its attached shells.
type Activation struct {
	ID       string       `json:"id"`
	StorePath string       `json:"store_path"`
	Ready     bool         `json:"ready"`
	StartID   string       `json:"start_id"`
	Attachments []Attachment `json:"attachments"`
}

// AttachedPIDs returns the pids currently recorded, in insertion order.
func (a *Activation) AttachedPIDs() []int {
	pids := make([]int, 0, len(a.Attachments))
	for _, at := range a.Attachments {
		pids = append(pids, at.PID)
	}
	return pids
}

// Registry is the raw decode target for activations.json. Its schema has
// not yet been validated; CheckVersion is its only useful method besides
// plain field access.
type Registry struct {
	Version     int          `json:"version"`
	Activations []Activation `json:"activations"`
}

// CheckedRegistry wraps a Registry whose Version has been validated against
// SchemaVersion. Only CheckedRegistry exposes mutating methods.
type CheckedRegistry struct {
	reg *Registry
}

// CheckVersion validates r.Version and returns a CheckedRegistry, or an
// error if the schema is unrecognized. There is deliberately no attempt to
// auto-migrate: an unknown version is fatal to the caller (see spec.md §7).
func (r *Registry) CheckVersion() (CheckedRegistry, error) {
	if r.Version != SchemaVersion {
		return CheckedRegistry{}, fmt.Errorf("activations.json has unsupported schema version %d (expected %d); refusing to guess migration semantics", r.Version, SchemaVersion)
	}
	return CheckedRegistry{reg: r}, nil
}

// Unwrap returns the underlying Registry for serialization.
func (c CheckedRegistry) Unwrap() *Registry {
	return c.reg
}

// IsEmpty reports whether the registry has no activations left.
func (c CheckedRegistry) IsEmpty() bool {
	return len(c.reg.Activations) == 0
}

// ActivationForID returns a pointer to the activation with the given id, or
// nil if absent.
func (c CheckedRegistry) ActivationForID(id string) *Activation {
	for i := range c.reg.Activations {
		if c.reg.Activations[i].ID == id {
			return &c.reg.Activations[i]
		}
	}
	return nil
}

// ActivationForStorePath returns the activation for storePath, or nil.
func (c CheckedRegistry) ActivationForStorePath(storePath string) *Activation {
	for i := range c.reg.Activations {
		if c.reg.Activations[i].StorePath == storePath {
			return &c.reg.Activations[i]
		}
	}
	return nil
}

// RemoveActivation deletes the activation with the given id, if present.
func (c CheckedRegistry) RemoveActivation(id string) {
	out := c.reg.Activations[:0]
	for _, a := range c.reg.Activations {
		if a.ID != id {
			out = append(out, a)
		}
	}
	c.reg.Activations = out
}

// AllAttachedPIDsWithExpiration returns every (pid, expiration) pair across
// every activation, used by the executive to seed its per-pid watchers.
func (c CheckedRegistry) AllAttachedPIDsWithExpiration() []Attachment {
	var out []Attachment
	for _, a := range c.reg.Activations {
		out = append(out, a.Attachments...)
	}
	return out
}

// StartOrAttachResult is the outcome of StartOrAttach: either the caller is
// the first to attach (Start) or it is joining an already-ready activation
// (Attach).
type StartOrAttachResult struct {
	// Started is true when this call created a new Activation.
	Started bool
	StartID string
	ID      string
}

// StartOrAttach implements spec.md §4.1's start_or_attach: a pure function
// over the in-memory registry. If a ready Activation exists for storePath,
// the caller attaches to it; otherwise a new Activation is created in the
// not-ready state with pid as its first attachment.
func (c CheckedRegistry) StartOrAttach(pid int, storePath string, expiration *time.Time) StartOrAttachResult {
	if a := c.ActivationForStorePath(storePath); a != nil && a.Ready {
		a.Attachments = append(a.Attachments, Attachment{PID: pid, Expiration: expiration})
		return StartOrAttachResult{Started: false, StartID: a.StartID, ID: a.ID}
	}

	id := uuid.NewString()
	startID := uuid.NewString()
	c.reg.Activations = append(c.reg.Activations, Activation{
		ID:        id,
		StorePath: storePath,
		Ready:     false,
		StartID:   startID,
		Attachments: []Attachment{
			{PID: pid, Expiration: expiration},
		},
	})
	return StartOrAttachResult{Started: true, StartID: startID, ID: id}
}

// SetReady transitions the activation with the given id to ready. Returns
// an error if the activation is absent (already torn down, or never
// existed).
func (c CheckedRegistry) SetReady(id string) error {
	a := c.ActivationForID(id)
	if a == nil {
		return fmt.Errorf("activation %q is not present in the registry (already torn down?)", id)
	}
	a.Ready = true
	return nil
}
