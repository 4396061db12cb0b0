// Package job provides the worker side job handler contract and the
// dispatcher resolving job names to handlers.
//
// A worker receives a job name and handle from a job server connection and
// asks the [Dispatcher] for a handler:
//   - Resolve: each [Resolver] is asked for a [Factory] in turn.
//   - Construct: the factory is called with the connection and handle.
//   - Validate: the result must implement [Handler].
//
// The [Registry] is the explicit registration surface. [PluginResolver]
// loads jobs by a file naming convention for hosts that want it.
//
// ## Errors:
// The package never logs. Unknown names fail with ErrUnresolvableJob and
// constructed values that are not handlers fail with ErrInvalidHandler.
package job

import (
	"errors"
	"fmt"
)

// Dispatcher creates job handlers by name. It holds no per call state and
// is safe for concurrent use if its resolvers are.
type Dispatcher struct {
	resolvers []Resolver
}

// NewDispatcher creates a dispatcher consulting resolvers in order.
func NewDispatcher(resolvers ...Resolver) *Dispatcher {
	return &Dispatcher{resolvers: resolvers}
}

// Create resolves name and constructs its handler bound to conn and handle.
// The job is not run.
func (d *Dispatcher) Create(name string, conn Conn, handle string) (Handler, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolvableJob, err)
	}
	factory, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	v := factory(conn, handle)
	h, ok := v.(Handler)
	if !ok {
		return nil, fmt.Errorf("%w: job %q constructed %T", ErrInvalidHandler, name, v)
	}
	return h, nil
}

// resolve returns the first factory found for name. Resolver errors other
// than ErrUnresolvableJob stop the search.
func (d *Dispatcher) resolve(name string) (Factory, error) {
	var errs []error
	for _, r := range d.resolvers {
		factory, err := r.Resolve(name)
		if err == nil {
			return factory, nil
		}
		if !errors.Is(err, ErrUnresolvableJob) {
			return nil, err
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %q: no resolvers", ErrUnresolvableJob, name)
	}
	return nil, errors.Join(errs...)
}
