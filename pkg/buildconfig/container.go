package buildconfig

import "github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"

// Container is an ordered map of build configurations keyed by
// identifier. Iteration yields configurations in current insertion
// order. Add is idempotent on identifier: a later add replaces the
// earlier entry and re-dates its position to the new insertion.
type Container struct {
	order []string
	items map[string]*Config
}

// NewContainer returns an empty Container.
func NewContainer() *Container {
	return &Container{items: make(map[string]*Config)}
}

// Add inserts cfg, keyed by its identifier. Adding a configuration
// under an identifier already present replaces its value and moves it
// to the end of iteration order, as if newly inserted.
func (c *Container) Add(cfg *Config) {
	id := cfg.Identifier()
	if _, exists := c.items[id]; exists {
		for i, existingID := range c.order {
			if existingID == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.order = append(c.order, id)
	c.items[id] = cfg
}

// AddAll inserts every configuration in cfgs, in order.
func (c *Container) AddAll(cfgs []*Config) {
	for _, cfg := range cfgs {
		c.Add(cfg)
	}
}

// Remove deletes the configuration with the given identifier. It is an
// error to remove an identifier not present in the container.
func (c *Container) Remove(identifier string) error {
	if _, exists := c.items[identifier]; !exists {
		return thrifterr.UnmanagedBuild(identifier)
	}
	delete(c.items, identifier)
	for i, id := range c.order {
		if id == identifier {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the configuration for identifier, and whether it was present.
func (c *Container) Get(identifier string) (*Config, bool) {
	cfg, ok := c.items[identifier]
	return cfg, ok
}

// Has reports whether identifier is present.
func (c *Container) Has(identifier string) bool {
	_, ok := c.items[identifier]
	return ok
}

// Len is the number of configurations held.
func (c *Container) Len() int { return len(c.order) }

// All returns every configuration in insertion order.
func (c *Container) All() []*Config {
	out := make([]*Config, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Identifiers returns every identifier in insertion order.
func (c *Container) Identifiers() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
