package resource

import (
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// Sysctl attribute bits.
const (
	SysctlValue Mask = 1 << iota
	SysctlPersist
)

// Sysctl is a kernel-parameter resource, e.g. "net.ipv4.ip_forward".
type Sysctl struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	name    string
	value   string
	persist bool

	liveValue string
}

func NewSysctl(name string) *Sysctl {
	return &Sysctl{key: name, name: name}
}

func (s *Sysctl) Kind() Kind           { return KindSysctl }
func (s *Sysctl) Key() string          { return s.key }
func (s *Sysctl) Priority() uint32     { return s.prio }
func (s *Sysctl) SetPriority(v uint32) { s.prio = v }
func (s *Sysctl) Enforced() Mask       { return s.enf }
func (s *Sysctl) Diff() Mask           { return s.diff }

func (s *Sysctl) SetAttr(attr, value string) error {
	switch attr {
	case "value":
		if value == "" {
			return invalidValue(KindSysctl, attr, value)
		}
		s.value = value
		s.enf |= SysctlValue
	case "persist":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindSysctl, attr, value)
		}
		s.persist = v
		s.enf |= SysctlPersist
	default:
		return unknownAttr(KindSysctl, attr)
	}
	return nil
}

func (s *Sysctl) UnsetAttr(attr string) error {
	switch attr {
	case "value":
		s.enf ^= SysctlValue
	case "persist":
		s.enf ^= SysctlPersist
	default:
		return unknownAttr(KindSysctl, attr)
	}
	return nil
}

func MergeSysctls(s1, s2 *Sysctl) *Sysctl {
	lo, hi := s1, s2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out
	if hi.enf.Has(SysctlValue) && !lo.enf.Has(SysctlValue) {
		merged.value = hi.value
		merged.enf |= SysctlValue
	}
	if hi.enf.Has(SysctlPersist) && !lo.enf.Has(SysctlPersist) {
		merged.persist = hi.persist
		merged.enf |= SysctlPersist
	}
	merged.prio = lo.prio
	return merged
}

func (s *Sysctl) Stat(view LiveView) error {
	s.diff = 0
	v, err := view.GetSysctl(s.name)
	if err != nil {
		return werr.Wrap(werr.NotFound, "sysctl %q", s.name)
	}
	s.liveValue = v
	if s.enf.Has(SysctlValue) && s.value != v {
		s.diff |= SysctlValue
	}
	return nil
}

func (s *Sysctl) Remediate(view LiveView) error {
	if s.diff.Has(SysctlValue) {
		if err := view.SetSysctl(s.name, s.value, s.persist); err != nil {
			return werr.Wrap(werr.RemediationFailed, "set sysctl %q", s.name)
		}
	}
	return s.Stat(view)
}

func (s *Sysctl) Pack() string {
	w := pack.NewWriter("res_sysctl::")
	w.String(s.key).Uint32(uint32(s.enf)).String(s.name).String(s.value).
		Uint8(boolToByte(s.persist)).Uint32(s.prio)
	return w.Done()
}

func UnpackSysctl(packed string) (*Sysctl, error) {
	r := pack.NewReader(packed, "res_sysctl::")
	s := &Sysctl{key: r.String()}
	s.enf = Mask(r.Uint32())
	s.name = r.String()
	s.value = r.String()
	s.persist = r.Uint8() != 0
	s.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack sysctl: %w", r.Err())
	}
	return s, nil
}

func (s *Sysctl) Attrs() map[string]string {
	out := map[string]string{}
	if s.enf.Has(SysctlValue) {
		out["value"] = s.value
	}
	if s.enf.Has(SysctlPersist) {
		out["persist"] = fmt.Sprint(s.persist)
	}
	return out
}
