package record

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture maps a table name to the rows to seed it with.
type Fixture map[string][]map[string]any

// ParseFixture decodes a YAML fixture and rejects unknown tables.
func ParseFixture(content []byte) (Fixture, error) {
	fixture := Fixture{}
	if err := yaml.Unmarshal(content, &fixture); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	for name := range fixture {
		if _, ok := CollectionByName(name); !ok {
			return nil, fmt.Errorf("parse fixture: unknown collection %q", name)
		}
	}
	return fixture, nil
}

// Apply creates every fixture row in store. Tables are written in
// dependency order so that referenced rows exist first.
func (f Fixture) Apply(ctx context.Context, store Store) (int, error) {
	created := 0
	for _, c := range AllCollections {
		for i, row := range f[c.Name] {
			if _, err := store.Create(ctx, c, Record(row)); err != nil {
				return created, fmt.Errorf("seed %s row %d: %w", c.Name, i, err)
			}
			created++
		}
	}
	return created, nil
}

// LoadFixture reads a YAML fixture file and seeds store with it.
func LoadFixture(ctx context.Context, store Store, file string) (int, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	fixture, err := ParseFixture(content)
	if err != nil {
		return 0, err
	}
	return fixture.Apply(ctx, store)
}
