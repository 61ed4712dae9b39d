package resource

import (
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// Service attribute bits.
const (
	ServiceRunning Mask = 1 << iota
	ServiceEnabled
)

// Service is the service resource (e.g. a systemd unit).
type Service struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	name    string
	running bool
	enabled bool

	liveRunning bool
	liveEnabled bool
}

func NewService(name string) *Service {
	return &Service{key: name, name: name}
}

func (s *Service) Kind() Kind           { return KindService }
func (s *Service) Key() string          { return s.key }
func (s *Service) Priority() uint32     { return s.prio }
func (s *Service) SetPriority(v uint32) { s.prio = v }
func (s *Service) Enforced() Mask       { return s.enf }
func (s *Service) Diff() Mask           { return s.diff }

func (s *Service) SetAttr(attr, value string) error {
	switch attr {
	case "running":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindService, attr, value)
		}
		s.running = v
		s.enf |= ServiceRunning
	case "enabled":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindService, attr, value)
		}
		s.enabled = v
		s.enf |= ServiceEnabled
	default:
		return unknownAttr(KindService, attr)
	}
	return nil
}

func (s *Service) UnsetAttr(attr string) error {
	switch attr {
	case "running":
		s.enf ^= ServiceRunning
	case "enabled":
		s.enf ^= ServiceEnabled
	default:
		return unknownAttr(KindService, attr)
	}
	return nil
}

func MergeServices(s1, s2 *Service) *Service {
	lo, hi := s1, s2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out
	if hi.enf.Has(ServiceRunning) && !lo.enf.Has(ServiceRunning) {
		merged.running = hi.running
		merged.enf |= ServiceRunning
	}
	if hi.enf.Has(ServiceEnabled) && !lo.enf.Has(ServiceEnabled) {
		merged.enabled = hi.enabled
		merged.enf |= ServiceEnabled
	}
	merged.prio = lo.prio
	return merged
}

func (s *Service) Stat(view LiveView) error {
	s.diff = 0
	running, enabled, err := view.ServiceStatus(s.name)
	if err != nil {
		return werr.Wrap(werr.NotFound, "service %q", s.name)
	}
	s.liveRunning = running
	s.liveEnabled = enabled

	if s.enf.Has(ServiceRunning) && s.running != running {
		s.diff |= ServiceRunning
	}
	if s.enf.Has(ServiceEnabled) && s.enabled != enabled {
		s.diff |= ServiceEnabled
	}
	return nil
}

func (s *Service) Remediate(view LiveView) error {
	if s.diff.Has(ServiceRunning) {
		if err := view.SetServiceRunning(s.name, s.running); err != nil {
			return werr.Wrap(werr.RemediationFailed, "set service %q running=%v", s.name, s.running)
		}
	}
	if s.diff.Has(ServiceEnabled) {
		if err := view.SetServiceEnabled(s.name, s.enabled); err != nil {
			return werr.Wrap(werr.RemediationFailed, "set service %q enabled=%v", s.name, s.enabled)
		}
	}
	return s.Stat(view)
}

func (s *Service) Pack() string {
	w := pack.NewWriter("res_service::")
	w.String(s.key).Uint32(uint32(s.enf)).String(s.name).
		Uint8(boolToByte(s.running)).Uint8(boolToByte(s.enabled)).Uint32(s.prio)
	return w.Done()
}

func UnpackService(packed string) (*Service, error) {
	r := pack.NewReader(packed, "res_service::")
	s := &Service{key: r.String()}
	s.enf = Mask(r.Uint32())
	s.name = r.String()
	s.running = r.Uint8() != 0
	s.enabled = r.Uint8() != 0
	s.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack service: %w", r.Err())
	}
	return s, nil
}

func (s *Service) Attrs() map[string]string {
	out := map[string]string{}
	if s.enf.Has(ServiceRunning) {
		out["running"] = fmt.Sprint(s.running)
	}
	if s.enf.Has(ServiceEnabled) {
		out["enabled"] = fmt.Sprint(s.enabled)
	}
	return out
}
