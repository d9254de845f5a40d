package reference

import (
	"errors"
	"fmt"
)

// Resolution failures. Both abort a compile; an unknown producer indicates a
// traversal-order bug rather than user error, since the builder rejects
// forward references at construction time.
var (
	ErrUnknownProducer  = errors.New("unknown producer step")
	ErrUnknownParameter = errors.New("runtime parameter not provided")
)

// Producer exposes the outputs of an already-instantiated task. The returned
// value is whatever the consuming engine uses to represent a deferred output.
type Producer interface {
	Output(field string) any
}

// Resolve maps a declared input value to its concrete form. Literals pass
// through unchanged. A ProducerOutput ref resolves against producers, a
// Parameter ref against params. Resolve is pure: no mutation, no I/O.
func Resolve(value any, producers map[string]Producer, params map[string]any) (any, error) {
	ref, ok := value.(Ref)
	if !ok {
		return value, nil
	}

	switch ref.Kind {
	case ProducerOutput:
		producer, exists := producers[ref.Producer]
		if !exists {
			return nil, fmt.Errorf("resolving %s: %w", ref, ErrUnknownProducer)
		}
		return producer.Output(ref.Field), nil
	case Parameter:
		param, exists := params[ref.Field]
		if !exists {
			return nil, fmt.Errorf("resolving %s: %w", ref, ErrUnknownParameter)
		}
		return param, nil
	default:
		return nil, fmt.Errorf("resolving %s: unknown reference kind %d", ref, ref.Kind)
	}
}
