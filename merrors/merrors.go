// Package merrors defines the error taxonomy shared by every melvin package.
//
// Public operations return these types (or wrap one with
// fmt.Errorf("...: %w", err)) rather than panicking on bad input; some
// failures (argument checks, OS and file errors in pvheader, hostinfo,
// util and config) are returned as plain fmt.Errorf errors instead. Assertions
// are reserved for invariants callers cannot trigger.
package merrors

import "fmt"

// Io wraps any failure from an underlying read or write.
type Io struct {
	Path  string
	Cause error
}

func (e *Io) Error() string {
	return fmt.Sprintf("io error on %q: %v", e.Path, e.Cause)
}

func (e *Io) Unwrap() error { return e.Cause }

// Where identifies which on-disk structure a Corrupt error was found in.
type Where string

// The locations a Corrupt error can point at.
const (
	WhereLabel       Where = "label"
	WhereMda         Where = "mda"
	WhereTextPayload Where = "text-payload"
)

// Corrupt reports a CRC or magic mismatch.
type Corrupt struct {
	Where  Where
	Detail string
}

func (e *Corrupt) Error() string {
	return fmt.Sprintf("corrupt %s: %s", e.Where, e.Detail)
}

// Inconsistent reports a structural disagreement that is not a checksum
// failure, e.g. an MDA's self-reported offset not matching its PvArea.
type Inconsistent struct {
	Detail string
}

func (e *Inconsistent) Error() string {
	return fmt.Sprintf("inconsistent on-disk state: %s", e.Detail)
}

// Parse reports a text-format syntax or shape error.
type Parse struct {
	Position int
	Detail   string
}

func (e *Parse) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Position, e.Detail)
}

// Invariant reports a model-level violation: overlap, unknown PV reference,
// or a duplicate name/id.
type Invariant struct {
	Detail string
}

func (e *Invariant) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.Detail)
}

// NoSpace reports that the allocator could not place the requested extents.
type NoSpace struct {
	Requested uint64
	Available uint64
}

func (e *NoSpace) Error() string {
	return fmt.Sprintf("no space: requested %d extents, %d available", e.Requested, e.Available)
}

// InUse reports an attempt to remove an entity still referenced elsewhere.
type InUse struct {
	Who string
}

func (e *InUse) Error() string {
	return fmt.Sprintf("in use by %q", e.Who)
}

// NotFound reports a lookup miss on a name or device.
type NotFound struct {
	What string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.What)
}

// External wraps an error surfaced by DMController or a PathResolver.
type External struct {
	Component string
	Cause     error
}

func (e *External) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Cause)
}

func (e *External) Unwrap() error { return e.Cause }
