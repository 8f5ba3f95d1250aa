// Package rules loads the legacy rules book: the catalogs of skills,
// traits, careers and aspirations, and the per-generation requirements.
// A Book is loaded once at startup and passed explicitly to the code
// that needs it.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultYAML is the built-in rules book.
//
//go:embed default.yaml
var DefaultYAML []byte

// DefaultMaxLevel applies to skills and careers that omit max_level.
const DefaultMaxLevel = 10

// Book is a parsed rules book. It is read-only after Load.
type Book struct {
	Catalog     Catalog           `yaml:"catalog"`
	Generations []GenerationRules `yaml:"generations"`
}

// Catalog lists the global entities tools may refer to by name.
type Catalog struct {
	Skills      []Leveled `yaml:"skills"`
	Traits      []string  `yaml:"traits"`
	Careers     []Leveled `yaml:"careers"`
	Aspirations []string  `yaml:"aspirations"`
}

// Leveled is a catalog entry with a level cap.
type Leveled struct {
	Name     string `yaml:"name"`
	MaxLevel int    `yaml:"max_level"`
}

// GenerationRules describes one generation of the legacy.
type GenerationRules struct {
	Number          int      `yaml:"number"`
	Name            string   `yaml:"name"`
	Summary         string   `yaml:"summary"`
	RequiredTraits  []string `yaml:"required_traits"`
	RequiredCareers []string `yaml:"required_careers"`
	Goals           Goals    `yaml:"goals"`
}

// Goals are the goal texts a generation starts with.
type Goals struct {
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

// Load reads a rules book from path. An empty path loads the built-in
// rules.
func Load(path string) (*Book, error) {
	if path == "" {
		return Parse(DefaultYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	book, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return book, nil
}

// Parse decodes and validates a rules book.
func Parse(data []byte) (*Book, error) {
	var b Book
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Book) applyDefaults() {
	for i := range b.Catalog.Skills {
		if b.Catalog.Skills[i].MaxLevel <= 0 {
			b.Catalog.Skills[i].MaxLevel = DefaultMaxLevel
		}
	}
	for i := range b.Catalog.Careers {
		if b.Catalog.Careers[i].MaxLevel <= 0 {
			b.Catalog.Careers[i].MaxLevel = DefaultMaxLevel
		}
	}
}

// Validate checks that names are present and unique and that
// generation numbers are positive and unique.
func (b *Book) Validate() error {
	if err := uniqueNames("skill", leveledNames(b.Catalog.Skills)); err != nil {
		return err
	}
	if err := uniqueNames("career", leveledNames(b.Catalog.Careers)); err != nil {
		return err
	}
	if err := uniqueNames("trait", b.Catalog.Traits); err != nil {
		return err
	}
	if err := uniqueNames("aspiration", b.Catalog.Aspirations); err != nil {
		return err
	}

	seen := make(map[int]bool, len(b.Generations))
	for _, g := range b.Generations {
		if g.Number <= 0 {
			return fmt.Errorf("generation %q: number must be positive", g.Name)
		}
		if seen[g.Number] {
			return fmt.Errorf("generation %d defined twice", g.Number)
		}
		seen[g.Number] = true
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("generation %d: name is required", g.Number)
		}
	}
	return nil
}

// Generation returns the rules for generation number n.
func (b *Book) Generation(n int) (GenerationRules, bool) {
	for _, g := range b.Generations {
		if g.Number == n {
			return g, true
		}
	}
	return GenerationRules{}, false
}

func leveledNames(items []Leveled) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names
}

func uniqueNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			return fmt.Errorf("%s with empty name", kind)
		}
		if seen[key] {
			return fmt.Errorf("%s %q listed twice", kind, n)
		}
		seen[key] = true
	}
	return nil
}
