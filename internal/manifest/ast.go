// Package manifest implements the manifest AST and its compilation
// into a policy.Policy: fact-hash-driven flattening of If/Map
// conditionals, $name/${name} interpolation against a fact+local
// scope, and implicit File/Dir dependency injection.
package manifest

// Node is one AST node. Every node type implements compile, which
// applies its effect to the in-progress compilation.
type Node interface {
	compile(c *compiler) error
}

// Prog evaluates its children in order, concatenating their effects.
type Prog struct {
	Children []Node
}

func (n *Prog) compile(c *compiler) error {
	for _, child := range n.Children {
		if err := child.compile(c); err != nil {
			return err
		}
	}
	return nil
}

// If evaluates to Then when facts[Fact] == Literal (exact string
// compare, empty string if absent), otherwise Else (which may itself
// be another If, to chain elif-style).
type If struct {
	Fact    string
	Literal string
	Then    Node
	Else    Node
}

func (n *If) compile(c *compiler) error {
	v := c.facts[n.Fact]
	if v == n.Literal {
		if n.Then != nil {
			return n.Then.compile(c)
		}
		return nil
	}
	if n.Else != nil {
		return n.Else.compile(c)
	}
	return nil
}

// Map selects a child keyed by the fact's value, falling back to the
// "default" entry if the value doesn't match any key.
type Map struct {
	Fact     string
	Children map[string]Node
}

func (n *Map) compile(c *compiler) error {
	v := c.facts[n.Fact]
	child, ok := n.Children[v]
	if !ok {
		child, ok = n.Children["default"]
	}
	if !ok || child == nil {
		return nil
	}
	return child.compile(c)
}

// Resource introduces a new resource to the catalog under (Type, Key).
// Its children are Attribute nodes applied via set().
type Resource struct {
	Type     string
	Key      string
	Priority uint32
	Children []Node
}

func (n *Resource) compile(c *compiler) error {
	return c.declareResource(n)
}

// Attribute sets one attribute on the innermost enclosing Resource.
// Value is interpolated against the fact+local scope before set().
type Attribute struct {
	Name  string
	Value string
}

func (n *Attribute) compile(c *compiler) error {
	return c.setAttribute(n)
}

// Include inlines another named policy at this position.
type Include struct {
	PolicyName string
}

func (n *Include) compile(c *compiler) error {
	return c.includePolicy(n.PolicyName)
}

// Dependency records that resource A depends on resource B; both must
// resolve to declared resources.
type Dependency struct {
	AType, AKey string
	BType, BKey string
}

func (n *Dependency) compile(c *compiler) error {
	return c.addDependency(n)
}

// Local binds a variable in the local scope visible to later siblings.
type Local struct {
	Name  string
	Value string
}

func (n *Local) compile(c *compiler) error {
	c.locals[n.Name] = interpolate(n.Value, c.facts, c.locals)
	return nil
}

// Host declares a top-level host entry (a Host resource with no
// enclosing policy attribute list).
type Host struct {
	Hostname string
	Children []Node
}

func (n *Host) compile(c *compiler) error {
	return (&Resource{Type: "host", Key: n.Hostname, Children: n.Children}).compile(c)
}
