package discover

import (
	"fmt"
	"sort"
	"sync"
)

// ScannerFactory creates an ImportScanner for a specific language.
type ScannerFactory func() ImportScanner

// ScannerRegistry maintains the language scanners by name with their file
// extensions. Thread-safe for concurrent access.
type ScannerRegistry struct {
	mu        sync.RWMutex
	factories map[string]ScannerFactory // name → factory
	extMap    map[string]string         // extension → scanner name
}

// NewScannerRegistry creates a new empty registry.
func NewScannerRegistry() *ScannerRegistry {
	return &ScannerRegistry{
		factories: make(map[string]ScannerFactory),
		extMap:    make(map[string]string),
	}
}

// Register adds a scanner factory for the given extensions.
// The first registration wins if there's an extension conflict.
// Extensions include the leading dot (e.g., ".py").
func (r *ScannerRegistry) Register(name string, extensions []string, factory ScannerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
	for _, ext := range extensions {
		if _, exists := r.extMap[ext]; !exists {
			r.extMap[ext] = name
		}
	}
}

// ScannerName returns the scanner registered for an extension.
func (r *ScannerRegistry) ScannerName(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.extMap[ext]
	return name, ok
}

// Create instantiates a scanner by name.
func (r *ScannerRegistry) Create(name string) (ImportScanner, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("scanner not registered: %s", name)
	}
	return factory(), nil
}

// Names returns all registered scanner names, sorted.
func (r *ScannerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global scanner registry.
// Language scanners register themselves via init() functions.
var DefaultRegistry = NewScannerRegistry()
