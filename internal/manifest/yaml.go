package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"warden/internal/werr"
)

// rawManifest is the YAML authoring surface: a set of named policies,
// each a sequence of rawNode, plus optional top-level host blocks.
type rawManifest struct {
	Policies map[string][]rawNode `yaml:"policies"`
	Hosts    []rawHost            `yaml:"hosts"`
}

type rawHost struct {
	Hostname string            `yaml:"hostname"`
	Attrs    map[string]string `yaml:"attrs"`
}

// rawNode is a tagged union over every manifest AST node, expressed as
// a struct with one populated field per node kind — the shape yaml.v3
// naturally decodes into without a custom UnmarshalYAML.
type rawNode struct {
	If         *rawIf         `yaml:"if"`
	Map        *rawMap        `yaml:"map"`
	Resource   *rawResource   `yaml:"resource"`
	Include    string         `yaml:"include"`
	Dependency *rawDependency `yaml:"dependency"`
	Local      *rawLocal      `yaml:"local"`
}

type rawIf struct {
	Fact   string    `yaml:"fact"`
	Equals string    `yaml:"equals"`
	Then   []rawNode `yaml:"then"`
	Else   []rawNode `yaml:"else"`
}

type rawMap struct {
	Fact     string               `yaml:"fact"`
	Children map[string][]rawNode `yaml:"children"`
}

type rawResource struct {
	Type     string            `yaml:"type"`
	Key      string            `yaml:"key"`
	Priority uint32            `yaml:"priority"`
	Attrs    map[string]string `yaml:"attrs"`
	// AttrOrder preserves authoring order for attributes that need to
	// apply in sequence (e.g. additive-members before removed-members
	// would matter if the same name appeared in both, which is itself
	// rejected at set time).
	AttrOrder []string `yaml:"attr_order"`
}

type rawDependency struct {
	A string `yaml:"a"` // "type/key"
	B string `yaml:"b"`
}

type rawLocal struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ParseYAML decodes a manifest authored in the YAML schema above into
// the AST Manifest that Compile consumes.
func ParseYAML(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, werr.Wrap(werr.ParseError, "manifest yaml: %v", err)
	}

	m := &Manifest{Policies: map[string]*Prog{}}
	for name, nodes := range raw.Policies {
		children, err := buildNodes(nodes)
		if err != nil {
			return nil, err
		}
		m.Policies[name] = &Prog{Children: children}
	}
	for _, h := range raw.Hosts {
		children, err := attrNodes(h.Attrs, nil)
		if err != nil {
			return nil, err
		}
		m.Hosts = append(m.Hosts, &Host{Hostname: h.Hostname, Children: children})
	}
	return m, nil
}

func buildNodes(raws []rawNode) ([]Node, error) {
	var out []Node
	for _, r := range raws {
		n, err := buildNode(r)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func buildNode(r rawNode) (Node, error) {
	switch {
	case r.If != nil:
		then, err := buildNodes(r.If.Then)
		if err != nil {
			return nil, err
		}
		els, err := buildNodes(r.If.Else)
		if err != nil {
			return nil, err
		}
		return &If{
			Fact:    r.If.Fact,
			Literal: r.If.Equals,
			Then:    &Prog{Children: then},
			Else:    &Prog{Children: els},
		}, nil

	case r.Map != nil:
		children := map[string]Node{}
		for key, nodes := range r.Map.Children {
			built, err := buildNodes(nodes)
			if err != nil {
				return nil, err
			}
			children[key] = &Prog{Children: built}
		}
		return &Map{Fact: r.Map.Fact, Children: children}, nil

	case r.Resource != nil:
		attrChildren, err := attrNodes(r.Resource.Attrs, r.Resource.AttrOrder)
		if err != nil {
			return nil, err
		}
		return &Resource{
			Type:     r.Resource.Type,
			Key:      r.Resource.Key,
			Priority: r.Resource.Priority,
			Children: attrChildren,
		}, nil

	case r.Include != "":
		return &Include{PolicyName: r.Include}, nil

	case r.Dependency != nil:
		aType, aKey, err := splitRef(r.Dependency.A)
		if err != nil {
			return nil, err
		}
		bType, bKey, err := splitRef(r.Dependency.B)
		if err != nil {
			return nil, err
		}
		return &Dependency{AType: aType, AKey: aKey, BType: bType, BKey: bKey}, nil

	case r.Local != nil:
		return &Local{Name: r.Local.Name, Value: r.Local.Value}, nil
	}
	return nil, nil
}

func attrNodes(attrs map[string]string, order []string) ([]Node, error) {
	var out []Node
	seen := map[string]bool{}
	for _, name := range order {
		v, ok := attrs[name]
		if !ok {
			continue
		}
		out = append(out, &Attribute{Name: name, Value: v})
		seen[name] = true
	}
	// Remaining attributes in an unordered map iterate in Go's
	// randomized order; callers that care about relative order between
	// same-named-set-twice attributes must use attr_order.
	for name, v := range attrs {
		if seen[name] {
			continue
		}
		out = append(out, &Attribute{Name: name, Value: v})
	}
	return out, nil
}

func splitRef(ref string) (kind, key string, err error) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("%w: malformed resource reference %q, want type/key", werr.ParseError, ref)
}
