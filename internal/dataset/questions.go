package dataset

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Direction says which end of a question's value range is the better one.
type Direction string

const (
	// Lower values are better, e.g. obesity rates.
	DirectionMin Direction = "min"
	// Higher values are better, e.g. physical activity rates.
	DirectionMax Direction = "max"
)

//go:embed questions.yaml
var defaultCatalog []byte

// QuestionSpec is one entry of the question catalog.
type QuestionSpec struct {
	Question  string    `yaml:"question"`
	Direction Direction `yaml:"direction"`
}

// Catalog maps questions to their ranking direction.
type Catalog struct {
	directions map[string]Direction
}

// DefaultCatalog returns the built-in question catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded question catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML question catalog from path. An empty path yields
// the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses a YAML document of the form:
//
//	questions:
//	  - question: "..."
//	    direction: min
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Questions []QuestionSpec `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question catalog: %w", err)
	}

	c := &Catalog{directions: make(map[string]Direction, len(doc.Questions))}
	for _, q := range doc.Questions {
		switch q.Direction {
		case DirectionMin, DirectionMax:
		default:
			return nil, fmt.Errorf("question %q: invalid direction %q", q.Question, q.Direction)
		}
		c.directions[q.Question] = q.Direction
	}
	return c, nil
}

// Direction returns the ranking direction for question. Questions missing
// from the catalog rank as DirectionMax.
func (c *Catalog) Direction(question string) Direction {
	if d, ok := c.directions[question]; ok {
		return d
	}
	return DirectionMax
}

// Len returns the number of catalogued questions.
func (c *Catalog) Len() int {
	return len(c.directions)
}
