package rank

// Rank is one entry in the globally shared rank catalog. Permission nodes
// prefixed with "-" revoke the node at that level of the chain.
type Rank struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Priority    int      `json:"priority"`
	Prefix      string   `json:"prefix"`
	Color       string   `json:"color"`
	Staff       bool     `json:"staff"`
	Permissions []string `json:"permissions"`
	ParentID    *string  `json:"parentId,omitempty"`
}

// PermissionSet is the effective set of granted nodes for one player.
type PermissionSet map[string]struct{}

// Has reports whether the node is granted.
func (s PermissionSet) Has(node string) bool {
	_, ok := s[node]
	return ok
}

// Nodes returns the granted nodes in unspecified order.
func (s PermissionSet) Nodes() []string {
	nodes := make([]string, 0, len(s))
	for node := range s {
		nodes = append(nodes, node)
	}
	return nodes
}
