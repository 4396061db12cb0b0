package job

import (
	"fmt"
	"path/filepath"
	"plugin"
	"regexp"
)

var pluginNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// PluginResolver resolves job names by convention: the job "Name" lives in
// the Go plugin Dir/Name.so, which exports
//
//	func NewName(conn job.Conn, handle string) any
//
// Only names that are valid Go identifiers can be resolved this way.
type PluginResolver struct {
	Dir string
}

// Resolve opens the plugin for name and looks up its constructor.
func (p PluginResolver) Resolve(name string) (Factory, error) {
	if !pluginNameRE.MatchString(name) {
		return nil, fmt.Errorf("%w: %q is not a plugin job name", ErrUnresolvableJob, name)
	}
	path := filepath.Join(p.Dir, name+".so")
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open plugin %q: %w", ErrUnresolvableJob, path, err)
	}
	symbol := "New" + name
	sym, err := plug.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %q in plugin %q: %w", ErrUnresolvableJob, symbol, path, err)
	}
	switch fn := sym.(type) {
	case func(Conn, string) any:
		return fn, nil
	case *Factory:
		return *fn, nil
	default:
		return nil, fmt.Errorf("%w: %q in plugin %q has type %T", ErrInvalidHandler, symbol, path, sym)
	}
}
