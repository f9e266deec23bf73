package product

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// fileEntry is one product in a catalog file:
//
//	farmer-node:
//	  name: Farmer node
//	  cost: 1.5
//	  cmd: provision_node
type fileEntry struct {
	Name    string               `yaml:"name"`
	Cost    cost                 `yaml:"cost"`
	Command subscription.Command `yaml:"cmd"`
}

// cost decodes a display-unit XCH amount written either as a YAML number
// or a quoted string.
type cost struct {
	types.Money
	set bool
}

func (c *cost) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: cost must be a scalar", node.Line)
	}
	m, err := types.ParseXCH(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	c.Money, c.set = m, true
	return nil
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*StaticCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("product: open catalog: %w", err)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("product: %s: %w", path, err)
	}
	return c, nil
}

// Load decodes a YAML catalog mapping product key to entry.
func Load(r io.Reader) (*StaticCatalog, error) {
	var raw map[string]fileEntry
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	ps := make([]Product, 0, len(raw))
	for key, e := range raw {
		if !e.Cost.set {
			return nil, fmt.Errorf("product %q: missing cost", key)
		}
		cmd := subscription.Command(strings.TrimSpace(string(e.Command)))
		if cmd == "" {
			cmd = subscription.CommandNone
		}
		name := e.Name
		if name == "" {
			name = key
		}
		ps = append(ps, Product{Key: key, Name: name, Cost: e.Cost.Money, Command: cmd})
	}
	return NewCatalog(ps...)
}
