package manifest

import (
	"fmt"

	"warden/internal/policy"
	"warden/internal/resource"
	"warden/internal/werr"
)

// Manifest holds a set of named policies and optional top-level host
// definitions.
type Manifest struct {
	Policies map[string]*Prog
	Hosts    []*Host
}

type compiler struct {
	facts   map[string]string
	locals  map[string]string
	pol     *policy.Policy
	current resource.Resource // innermost enclosing Resource node, if any
	m       *Manifest

	// implicit dependency bookkeeping: File/Dir resources implicitly
	// depend on their declared owner/group and parent Dir.
	pendingOwner map[policy.ResourceID]string
	pendingGroup map[policy.ResourceID]string
	pendingDir   map[policy.ResourceID]string
}

// Compile selects entry as the named policy entry point and walks its
// AST with facts bound as the fact hash, producing a topologically
// sorted policy.Policy.
func Compile(m *Manifest, entry string, facts map[string]string) (*policy.Policy, error) {
	prog, ok := m.Policies[entry]
	if !ok {
		return nil, werr.Wrap(werr.NotFound, "policy %q", entry)
	}

	c := &compiler{
		facts:        facts,
		locals:       map[string]string{},
		pol:          policy.New(entry),
		m:            m,
		pendingOwner: map[policy.ResourceID]string{},
		pendingGroup: map[policy.ResourceID]string{},
		pendingDir:   map[policy.ResourceID]string{},
	}

	for _, h := range m.Hosts {
		if err := h.compile(c); err != nil {
			return nil, err
		}
	}
	if err := prog.compile(c); err != nil {
		return nil, err
	}
	if err := c.injectImplicitDependencies(); err != nil {
		return nil, err
	}
	sorted, err := c.pol.Sort()
	if err != nil {
		return nil, err
	}
	out := policy.New(c.pol.Name)
	for _, r := range sorted {
		if err := out.Add(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func newResourceByType(kind, key string) (resource.Resource, error) {
	switch kind {
	case "user":
		return resource.NewUser(key), nil
	case "group":
		return resource.NewGroup(key), nil
	case "file":
		return resource.NewFile(key), nil
	case "dir":
		return resource.NewDir(key), nil
	case "package":
		return resource.NewPackage(key), nil
	case "service":
		return resource.NewService(key), nil
	case "host":
		return resource.NewHost(key), nil
	case "sysctl":
		return resource.NewSysctl(key), nil
	default:
		return nil, werr.Wrap(werr.InvalidValue, "unknown resource type %q", kind)
	}
}

func (c *compiler) declareResource(n *Resource) error {
	r, err := newResourceByType(n.Type, n.Key)
	if err != nil {
		return err
	}
	r.SetPriority(n.Priority)

	prev := c.current
	c.current = r
	for _, child := range n.Children {
		if err := child.compile(c); err != nil {
			c.current = prev
			return err
		}
	}
	c.current = prev

	if err := c.pol.Add(r); err != nil {
		return err
	}
	c.recordImplicitTargets(n)
	return nil
}

func (c *compiler) recordImplicitTargets(n *Resource) {
	if n.Type != "file" && n.Type != "dir" {
		return
	}
	id := policy.ResourceID{Kind: resource.Kind(n.Type), Key: n.Key}
	r, ok := c.pol.Get(id)
	if !ok {
		return
	}
	attrs := r.Attrs()
	if owner, ok := attrs["owner"]; ok {
		c.pendingOwner[id] = owner
	}
	if group, ok := attrs["group"]; ok {
		c.pendingGroup[id] = group
	}
}

// injectImplicitDependencies wires File/Dir resources to their
// declared owner User, group Group, and parent Dir, when those are
// also declared in the policy.
func (c *compiler) injectImplicitDependencies() error {
	for id, owner := range c.pendingOwner {
		target := policy.ResourceID{Kind: resource.KindUser, Key: owner}
		if _, ok := c.pol.Get(target); ok {
			if err := c.pol.AddDependency(id, target); err != nil {
				return err
			}
		}
	}
	for id, group := range c.pendingGroup {
		target := policy.ResourceID{Kind: resource.KindGroup, Key: group}
		if _, ok := c.pol.Get(target); ok {
			if err := c.pol.AddDependency(id, target); err != nil {
				return err
			}
		}
	}
	for _, r := range c.pol.Resources() {
		if r.Kind() != resource.KindFile && r.Kind() != resource.KindDir {
			continue
		}
		id := policy.ResourceID{Kind: r.Kind(), Key: r.Key()}
		parent := parentDir(r.Key())
		if parent == "" {
			continue
		}
		target := policy.ResourceID{Kind: resource.KindDir, Key: parent}
		if target == id {
			continue
		}
		if _, ok := c.pol.Get(target); ok {
			if err := c.pol.AddDependency(id, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func parentDir(path string) string {
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return ""
	}
	return path[:i]
}

func (c *compiler) setAttribute(n *Attribute) error {
	if c.current == nil {
		return werr.Wrap(werr.InvalidValue, "attribute %q outside any resource", n.Name)
	}
	value := interpolate(n.Value, c.facts, c.locals)
	return c.current.SetAttr(n.Name, value)
}

func (c *compiler) includePolicy(name string) error {
	prog, ok := c.m.Policies[name]
	if !ok {
		return werr.Wrap(werr.NotFound, "included policy %q", name)
	}
	return prog.compile(c)
}

func (c *compiler) addDependency(n *Dependency) error {
	a := policy.ResourceID{Kind: resource.Kind(n.AType), Key: n.AKey}
	b := policy.ResourceID{Kind: resource.Kind(n.BType), Key: n.BKey}
	if err := c.pol.AddDependency(a, b); err != nil {
		return fmt.Errorf("dependency %s -> %s: %w", a, b, err)
	}
	return nil
}
