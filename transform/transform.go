// Package transform converts caller-level intents into wire records (Build) and applies partial
// changes to stored records without disturbing anything the change does not name (Patch).
package transform

import (
	"github.com/cyp0633/davmutate/errs"
)

// ProductID identifies records written by this module.
const ProductID = "-//github.com/cyp0633/davmutate//NONSGML v1.0//EN"

// Grammar is the narrow interface over a structured-text codec. Mutation logic only sees this,
// so the concrete library can be swapped or fuzzed in isolation.
type Grammar[T any] interface {
	Parse(data []byte) (T, error)
	Serialize(v T) ([]byte, error)
}

// Record is the output of Build and Patch: the complete wire text and its stable identifier.
type Record struct {
	UID      string
	Data     []byte
	Warnings []errs.SchedulingSideEffectWarning
}

// Transformer turns caller input into wire text for one record family. C is the creation input
// and P the partial-change description.
type Transformer[C, P any] interface {
	Build(input C) (*Record, error)
	Patch(existing []byte, patch P) (*Record, error)
	ContentType() string
	Extension() string
}
