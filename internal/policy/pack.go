package policy

import (
	"warden/internal/resource"
	"warden/internal/werr"
	"warden/pkg/pack"
)

// Pack renders p in the fixed wire form used for the POLICY PDU: a
// count followed by (kind, packed-resource) pairs in declaration
// order. Dependencies are not carried across the wire — the compiled
// order embedded by the sender is what the agent evaluates against,
// since Sort is itself a pure function of the declared dependencies
// and the agent never re-derives them.
func (p *Policy) Pack() string {
	w := pack.NewWriter("policy::")
	w.String(p.Name)
	w.Uint32(uint32(len(p.order)))
	for _, id := range p.order {
		w.String(string(id.Kind))
		w.String(p.resources[id].Pack())
	}
	return w.Done()
}

// Unpack parses a policy previously produced by Pack, in declaration
// order, with no dependency edges (the agent evaluates resources in
// the order they arrive).
func Unpack(packed string) (*Policy, error) {
	r := pack.NewReader(packed, "policy::")
	name := r.String()
	count := r.Uint32()

	pol := New(name)
	for i := uint32(0); i < count; i++ {
		kind := resource.Kind(r.String())
		body := r.String()
		if err := r.Err(); err != nil {
			return nil, err
		}
		res, err := unpackByKind(kind, body)
		if err != nil {
			return nil, err
		}
		if err := pol.Add(res); err != nil {
			return nil, err
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return pol, nil
}

func unpackByKind(kind resource.Kind, body string) (resource.Resource, error) {
	switch kind {
	case resource.KindUser:
		return resource.UnpackUser(body)
	case resource.KindGroup:
		return resource.UnpackGroup(body)
	case resource.KindFile:
		return resource.UnpackFile(body)
	case resource.KindDir:
		return resource.UnpackDir(body)
	case resource.KindPackage:
		return resource.UnpackPackage(body)
	case resource.KindService:
		return resource.UnpackService(body)
	case resource.KindHost:
		return resource.UnpackHost(body)
	case resource.KindSysctl:
		return resource.UnpackSysctl(body)
	default:
		return nil, werr.Wrap(werr.ParseError, "policy: unknown resource kind %q", kind)
	}
}
