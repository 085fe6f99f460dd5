package agent

import (
	"sort"
	"strings"
)

// Profile is the immutable configuration of one agent identity: which
// completion target it talks to, the prompt it starts from, and the tool
// subset it may use. A Profile is selected once per session and never
// mutated.
type Profile struct {
	Name       string
	Provider   string // completion client routing key
	Model      string
	BasePrompt string
	Tools      []string // permitted tool subset; nil permits all registered tools
	Gated      []string // tools requiring operator approval before execution
}

// IsGated reports whether the named tool requires approval under this
// profile.
func (p Profile) IsGated(name string) bool {
	for _, g := range p.Gated {
		if g == name {
			return true
		}
	}
	return false
}

// SystemPrompt composes the full system prompt: the base prompt followed by
// optional dynamic sections. Composition is plain concatenation guarded by
// emptiness checks.
func (p Profile) SystemPrompt(memoryRecall, capabilities string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.BasePrompt))

	if memoryRecall = strings.TrimSpace(memoryRecall); memoryRecall != "" {
		sb.WriteString("\n\n# Session Memory\n\n")
		sb.WriteString(memoryRecall)
	}
	if capabilities = strings.TrimSpace(capabilities); capabilities != "" {
		sb.WriteString("\n\n# Verified Capabilities\n\n")
		sb.WriteString(capabilities)
	}
	return sb.String()
}

// ProfileTable is a frozen mapping from agent identifier to Profile,
// constructed once at startup.
type ProfileTable struct {
	profiles map[string]Profile
}

// NewProfileTable builds a table from the given profiles. Later entries with
// a duplicate name replace earlier ones.
func NewProfileTable(profiles ...Profile) *ProfileTable {
	m := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		m[p.Name] = p
	}
	return &ProfileTable{profiles: m}
}

// Get looks up a profile by agent identifier.
func (t *ProfileTable) Get(name string) (Profile, bool) {
	p, ok := t.profiles[name]
	return p, ok
}

// Names returns all agent identifiers in sorted order.
func (t *ProfileTable) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
