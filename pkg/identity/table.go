package identity

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Source identifies which provider a raw name came from. Each source has its
// own strict dictionary because the two feeds use different naming
// conventions for the same clubs.
type Source string

const (
	SourceBookmaker Source = "bookmaker"
	SourceMarket    Source = "market"
)

// Entity is the canonical identity for one team or country. The canonical
// name is the unique key the rest of the engine groups and joins on.
type Entity struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// Table holds the static identity data a Resolver matches against. Tables
// are loaded once at startup and never mutated afterwards, so a single
// Table may back any number of concurrent resolvers.
type Table struct {
	Entities []Entity `yaml:"entities"`

	// Dictionaries holds per-source exact mappings from a provider's
	// spelling to a canonical name ("Wolverhampton Wanderers" -> "Wolves").
	// These take priority over alias and fuzzy matching.
	Dictionaries map[Source]map[string]string `yaml:"dictionaries"`

	byCanonical map[string]*Entity // Fold(canonical) -> entity
	byAlias     map[string]*Entity // Fold(alias) -> entity
	canonicals  []string           // sorted, for deterministic iteration
}

// LoadTable reads and validates an identity table from a YAML file. A table
// that fails validation is a startup-fatal condition: resolving against a
// structurally broken table risks silently merging distinct teams.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity table: %w", err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing identity table: %w", err)
	}

	if err := t.build(); err != nil {
		return nil, fmt.Errorf("invalid identity table %s: %w", path, err)
	}
	return &t, nil
}

// NewTable builds a table from in-memory data. Used by tests and by callers
// that assemble tables programmatically.
func NewTable(entities []Entity, dicts map[Source]map[string]string) (*Table, error) {
	t := &Table{Entities: entities, Dictionaries: dicts}
	if err := t.build(); err != nil {
		return nil, err
	}
	return t, nil
}

// build indexes the table and validates its invariants:
//   - canonical names are unique
//   - no alias belongs to two distinct entities, and no alias shadows
//     another entity's canonical name
//   - every dictionary value names a known entity
func (t *Table) build() error {
	if len(t.Entities) == 0 {
		return fmt.Errorf("no entities defined")
	}

	t.byCanonical = make(map[string]*Entity, len(t.Entities))
	t.byAlias = make(map[string]*Entity)
	t.canonicals = make([]string, 0, len(t.Entities))

	for i := range t.Entities {
		e := &t.Entities[i]
		if e.Canonical == "" {
			return fmt.Errorf("entity %d has empty canonical name", i)
		}
		key := Fold(e.Canonical)
		if prev, ok := t.byCanonical[key]; ok {
			return fmt.Errorf("duplicate canonical name %q (also %q)", e.Canonical, prev.Canonical)
		}
		t.byCanonical[key] = e
		t.canonicals = append(t.canonicals, e.Canonical)
	}

	for i := range t.Entities {
		e := &t.Entities[i]
		for _, alias := range e.Aliases {
			key := Fold(alias)
			if key == "" {
				return fmt.Errorf("entity %q has empty alias", e.Canonical)
			}
			if other, ok := t.byAlias[key]; ok && other != e {
				return fmt.Errorf("alias %q is ambiguous between %q and %q", alias, other.Canonical, e.Canonical)
			}
			if other, ok := t.byCanonical[key]; ok && other != e {
				return fmt.Errorf("alias %q of %q shadows canonical name %q", alias, e.Canonical, other.Canonical)
			}
			t.byAlias[key] = e
		}
	}

	for src, dict := range t.Dictionaries {
		if src != SourceBookmaker && src != SourceMarket {
			return fmt.Errorf("unknown dictionary source %q", src)
		}
		for raw, canonical := range dict {
			if _, ok := t.entity(canonical); !ok {
				return fmt.Errorf("dictionary %s maps %q to unknown entity %q", src, raw, canonical)
			}
		}
	}

	sort.Strings(t.canonicals)
	return nil
}

// entity looks up an entity by canonical name or alias.
func (t *Table) entity(name string) (*Entity, bool) {
	key := Fold(name)
	if e, ok := t.byCanonical[key]; ok {
		return e, true
	}
	if e, ok := t.byAlias[key]; ok {
		return e, true
	}
	return nil, false
}

// dictionary returns the strict mapping for a source, which may be nil.
func (t *Table) dictionary(src Source) map[string]string {
	if t.Dictionaries == nil {
		return nil
	}
	return t.Dictionaries[src]
}

// EntityCount returns the number of canonical entities in the table.
func (t *Table) EntityCount() int {
	return len(t.Entities)
}
