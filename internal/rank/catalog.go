package rank

import (
	"fmt"
	"sync"
)

// Catalog holds the rarely-changing rank hierarchy, loaded once and cached
// process-wide. Parent chains are validated acyclic at load; resolution can
// then walk them without runtime cycle checks.
type Catalog struct {
	mu    sync.RWMutex
	ranks map[string]Rank
}

// NewCatalog builds and validates a catalog.
func NewCatalog(ranks []Rank) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(ranks); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the catalog contents after validating the new set.
func (c *Catalog) Replace(ranks []Rank) error {
	index := make(map[string]Rank, len(ranks))
	for _, r := range ranks {
		if _, dup := index[r.ID]; dup {
			return fmt.Errorf("rank: duplicate id %q", r.ID)
		}
		index[r.ID] = r
	}
	for _, r := range ranks {
		seen := map[string]bool{r.ID: true}
		cur := r
		for cur.ParentID != nil {
			parent, ok := index[*cur.ParentID]
			if !ok {
				return fmt.Errorf("rank: %q references unknown parent %q", cur.ID, *cur.ParentID)
			}
			if seen[parent.ID] {
				return fmt.Errorf("rank: cycle through %q", parent.ID)
			}
			seen[parent.ID] = true
			cur = parent
		}
	}
	c.mu.Lock()
	c.ranks = index
	c.mu.Unlock()
	return nil
}

// Get returns one rank by id.
func (c *Catalog) Get(id string) (Rank, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.ranks[id]
	return r, ok
}

// Chain returns the inheritance chain from root to the given rank, so later
// entries override earlier ones during resolution. Unknown ids yield an
// empty chain.
func (c *Catalog) Chain(id string) []Rank {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var reversed []Rank
	cur, ok := c.ranks[id]
	for ok {
		reversed = append(reversed, cur)
		if cur.ParentID == nil {
			break
		}
		cur, ok = c.ranks[*cur.ParentID]
	}
	chain := make([]Rank, len(reversed))
	for i, r := range reversed {
		chain[len(reversed)-1-i] = r
	}
	return chain
}

// Len returns the number of ranks loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ranks)
}
