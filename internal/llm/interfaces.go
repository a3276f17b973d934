package llm

// LLMRegistry defines the interface for generator registry operations
// used by the daemon handlers
type LLMRegistry interface {
	// List returns all registered provider names
	List() []string

	// Default returns the default generator
	Default() (Generator, error)

	// DefaultName returns the name of the default generator
	DefaultName() string

	// Get retrieves a generator by name
	Get(name string) (Generator, error)

	// SetDefault sets the default provider
	SetDefault(name string) error

	// Register adds a generator to the registry
	Register(name string, g Generator)

	// Close releases every registered generator that holds resources
	Close() error
}

// Ensure Registry implements LLMRegistry
var _ LLMRegistry = (*Registry)(nil)
