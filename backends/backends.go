// Package backends defines the interface a memory runtime needs to implement
// to back infergraph's memory planning, plus a registry of implementations.
//
// The interface is deliberately narrow: the planning core only ever asks a
// backend for one contiguous arena (after the complete footprint is known)
// and returns it on teardown. Kernel execution and device plumbing live
// behind this boundary and are not part of the core.
//
// To simplify error handling, implementations are expected to throw (panic)
// with a stack trace in case of errors. See package github.com/gomlx/exceptions.
package backends

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
)

// Backend is the runtime a Graph and its Allocator are bound to.
//
// Backend identity matters: a graph rejects tensors created for a different
// backend instance, and comparing the interface values is how that check is
// done.
type Backend interface {
	// Name returns the short name of the backend, the one used to select it in the registry. E.g.: "hostmem".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Alloc reserves size contiguous bytes and returns them. A nil or short
	// return means the backing allocation failed; callers treat that as fatal.
	Alloc(size int) []byte

	// Dealloc returns an arena previously handed out by Alloc. The slice must
	// not be used after this call.
	Dealloc(arena []byte)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) Backend

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration
// string that is passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the backend configuration to use if none is given by the environment.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// INFERGRAPH_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "hostmem") and
// "<backend_configuration>" is backend specific.
const INFERGRAPH_BACKEND = "INFERGRAPH_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment INFERGRAPH_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
//
// It panics if no backend was registered.
func New() Backend {
	config, found := os.LookupEnv(INFERGRAPH_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<backend_name>:<backend_configuration>"
// and returns a Backend built by the constructor registered under that name.
func NewWithConfig(config string) Backend {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered backends for infergraph -- maybe import the default one with import _ "github.com/infergraph/infergraph/backends/hostmem"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		exceptions.Panicf("can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}
