package job

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// RunFunc is the body of a job registered with [Registry.RegisterFunc]. c
// reports status and data for the running job.
type RunFunc func(ctx context.Context, c *Common, arg []byte) ([]byte, error)

// Registry maps job names to factories. It is safe for concurrent use and
// implements [Resolver].
type Registry struct {
	mutex     sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers factory under name. It fails with ErrJobName for
// names that are empty or contain spaces or control characters and with
// ErrDuplicateJob if name is already registered.
func (r *Registry) Register(name string, factory Factory) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidHandler, name)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateJob, name)
	}
	r.factories[name] = factory
	return nil
}

// RegisterFunc registers a job whose Run method calls fn.
func (r *Registry) RegisterFunc(name string, fn RunFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: nil func for %q", ErrInvalidHandler, name)
	}
	return r.Register(name, func(conn Conn, handle string) any {
		return &funcJob{Common: NewCommon(conn, handle), run: fn}
	})
}

// Resolve returns the factory registered under name.
func (r *Registry) Resolve(name string) (Factory, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not registered", ErrUnresolvableJob, name)
	}
	return factory, nil
}

// Names returns the registered job names in sorted order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateName checks that name can be used as a job name. Job names are
// used verbatim as lookup keys.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrJobName)
	}
	if i := strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }); i >= 0 {
		return fmt.Errorf("%w: %q contains whitespace or control character at %d", ErrJobName, name, i)
	}
	return nil
}

type funcJob struct {
	*Common
	run RunFunc
}

func (j *funcJob) Run(ctx context.Context, arg []byte) ([]byte, error) {
	return j.run(ctx, j.Common, arg)
}
