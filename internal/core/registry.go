package core

import (
	"fmt"
	"sort"
	"sync"
)

// SourceDefinition describes a candidate view.
type SourceDefinition struct {
	Key   string // Unique identifier: "purchase_invoices"
	Kind  Kind   // Document kind the view yields
	Label string // Display name
	View  string // Relational view read by the provider
	Order int    // Scan and tie-break order
}

var (
	registry   = make(map[string]SourceDefinition)
	registryMu sync.RWMutex
)

// Register adds a source definition to the registry.
// Panics if a source with the same key is already registered.
func Register(def SourceDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("source already registered: %s", def.Key))
	}
	if def.View == "" {
		def.View = def.Key
	}

	registry[def.Key] = def
}

// Get returns a source definition by key.
func Get(key string) (SourceDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered sources sorted by order then key.
func All() []SourceDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SourceDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sortSources(result)
	return result
}

// Targets returns the sources searched for an anchor of kind k.
// Bank movements are matched against every ledger; every ledger kind is
// matched against bank movements.
func Targets(k Kind) []SourceDefinition {
	var result []SourceDefinition
	for _, def := range All() {
		if k == KindBank && def.Kind != KindBank {
			result = append(result, def)
		}
		if k != KindBank && def.Kind == KindBank {
			result = append(result, def)
		}
	}
	return result
}

// SourceCount returns the number of registered sources.
func SourceCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

func sortSources(defs []SourceDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Order != defs[j].Order {
			return defs[i].Order < defs[j].Order
		}
		return defs[i].Key < defs[j].Key
	})
}
