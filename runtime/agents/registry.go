// Package agents provides the registry that routes incoming queries to
// specialist agents by keyword. Registries are explicit instances constructed
// at startup and passed into the run orchestrator; there is no module-level
// registry and no hidden global state.
package agents

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type (
	// Agent describes one specialist: a name, the keywords that route to it,
	// and the system prompt that frames its conversations. UI agents drive
	// the tool loop to build surfaces; non-UI agents stream plain text.
	Agent struct {
		// Name uniquely identifies the agent within its registry.
		Name string
		// Description documents the agent for operators.
		Description string
		// Keywords route queries to this agent. Matching is case-insensitive
		// on whole words.
		Keywords []string
		// SystemPrompt frames the agent's conversations.
		SystemPrompt string
		// UI reports whether the agent builds UI surfaces through the tool
		// loop rather than answering in plain text.
		UI bool
	}

	// Registry indexes agents and routes queries to them. Safe for
	// concurrent use.
	Registry struct {
		mu       sync.RWMutex
		agents   map[string]Agent
		order    []string
		fallback string
	}
)

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent. The first registered agent becomes the fallback
// until SetDefault overrides it.
func (r *Registry) Register(a Agent) error {
	if a.Name == "" {
		return errors.New("agents: agent name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.Name]; ok {
		return fmt.Errorf("agents: agent %q already registered", a.Name)
	}
	r.agents[a.Name] = a
	r.order = append(r.order, a.Name)
	if r.fallback == "" {
		r.fallback = a.Name
	}
	return nil
}

// SetDefault designates the agent used when no keyword matches.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		return fmt.Errorf("agents: agent %q not registered", name)
	}
	r.fallback = name
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Route selects the agent whose keywords best match the query: the agent
// with the most whole-word keyword hits wins, ties resolve to registration
// order, and no hits fall back to the default agent. The boolean is false
// only when the registry is empty.
func (r *Registry) Route(query string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return Agent{}, false
	}
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		words[strings.Trim(w, ".,!?;:\"'()")] = struct{}{}
	}
	best := ""
	bestHits := 0
	for _, name := range r.order {
		hits := 0
		for _, kw := range r.agents[name].Keywords {
			if _, ok := words[strings.ToLower(kw)]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	if best == "" {
		best = r.fallback
	}
	return r.agents[best], true
}

// Names returns the registered agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
