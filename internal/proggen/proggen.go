// Package proggen generates candidate programs for an agent to sandbox-test
// and list. Grounded on original_source/src/user/program_generator.py.
package proggen

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/zap-empire/zapempire/internal/personality"
)

// Generated is a freshly produced candidate program, not yet sandbox-tested.
type Generated struct {
	ID          string
	Name        string
	Category    string
	Complexity  string
	Description string
	Source      string
	PriceSats   float64
}

// Generator produces candidate programs for one agent.
type Generator struct {
	personality    personality.Personality
	generatedCount int
	rng            *rand.Rand
}

// New constructs a program generator for the given personality.
func New(p personality.Personality) *Generator {
	return &Generator{personality: p, rng: rand.New(rand.NewSource(rand.Int63()))}
}

// GeneratedCount is the lifetime number of programs this generator has produced.
func (g *Generator) GeneratedCount() int { return g.generatedCount }

// categories returns the available catalog categories in stable order.
func categories() []string {
	return []string{"math", "text", "utilities", "validators"}
}

// Generate produces a new candidate program. If category is empty, one is
// chosen, favoring a specialist's focus category 70% of the time, matching
// program_generator.py's category-selection logic.
func (g *Generator) Generate(category string) (Generated, error) {
	cats := categories()
	if category == "" {
		if g.personality.CategoryFocus != "" && g.rng.Float64() < 0.7 {
			category = g.personality.CategoryFocus
		} else {
			category = cats[g.rng.Intn(len(cats))]
		}
	}

	templates, ok := Catalog[category]
	if !ok || len(templates) == 0 {
		return Generated{}, fmt.Errorf("proggen: no templates for category %q", category)
	}
	tmpl := templates[g.rng.Intn(len(templates))]
	variant := tmpl.Variants[g.rng.Intn(len(tmpl.Variants))]

	name := fmt.Sprintf(tmpl.NamePattern, variant)
	complexityMult := ComplexityMultipliers[tmpl.Complexity]

	basePrice := categoryBasePrice(category)
	jitter := 0.9 + g.rng.Float64()*0.2
	price := basePrice * complexityMult * g.personality.PriceMultiplier * jitter

	g.generatedCount++

	return Generated{
		ID:          uuid.NewString(),
		Name:        name,
		Category:    category,
		Complexity:  tmpl.Complexity,
		Description: tmpl.Description,
		Source:      tmpl.Skeleton,
		PriceSats:   price,
	}, nil
}

// categoryBasePrice mirrors internal/strategy.CategoryBasePrices for the
// four categories this reduced catalog covers.
func categoryBasePrice(category string) float64 {
	switch category {
	case "math":
		return 150
	case "text":
		return 200
	case "utilities":
		return 350
	case "validators":
		return 250
	default:
		return 200
	}
}
