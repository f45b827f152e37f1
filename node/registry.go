package node

import "fmt"

// Node type strings as they appear in the configuration's node list.
const (
	TypeAsioSource      = "asio_source"
	TypeAsioSink        = "asio_sink"
	TypeFileSource      = "file_source"
	TypeFileSink        = "file_sink"
	TypeFilterProcessor = "filter_processor"
	TypeCustom          = "custom"
)

// Factory constructs a fresh, Unconfigured Node of a given registered type.
type Factory func() Node

var registry = map[string]Factory{}

// Register adds a factory for typeName to the registry. Re-registering
// an existing type name replaces it — used by tests that swap in mocks.
func Register(typeName string, f Factory) {
	registry[typeName] = f
}

// Create constructs a new node of typeName, or an error if no factory is
// registered for it.
func Create(typeName string) (Node, error) {
	f, ok := registry[typeName]
	if !ok {
		return nil, fmt.Errorf("node: no factory registered for type %q", typeName)
	}
	return f(), nil
}

// Registered reports whether a factory exists for typeName.
func Registered(typeName string) bool {
	_, ok := registry[typeName]
	return ok
}
