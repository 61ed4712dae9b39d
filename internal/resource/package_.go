package resource

import (
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// Package attribute bits.
const (
	PackageVersion Mask = 1 << iota
	PackageInstalled
)

// Package is the package resource. Version "latest" means install or
// upgrade to whatever the package manager currently resolves as latest.
type Package struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	name      string
	version   string
	installed bool

	liveVersion string
	liveFound   bool
}

func NewPackage(name string) *Package {
	return &Package{key: name, name: name}
}

func (p *Package) Kind() Kind           { return KindPackage }
func (p *Package) Key() string          { return p.key }
func (p *Package) Priority() uint32     { return p.prio }
func (p *Package) SetPriority(v uint32) { p.prio = v }
func (p *Package) Enforced() Mask       { return p.enf }
func (p *Package) Diff() Mask           { return p.diff }

func (p *Package) SetAttr(attr, value string) error {
	switch attr {
	case "version":
		if value == "" {
			return invalidValue(KindPackage, attr, value)
		}
		p.version = value
		p.enf |= PackageVersion
	case "installed":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindPackage, attr, value)
		}
		p.installed = v
		p.enf |= PackageInstalled
	default:
		return unknownAttr(KindPackage, attr)
	}
	return nil
}

func (p *Package) UnsetAttr(attr string) error {
	switch attr {
	case "version":
		p.enf ^= PackageVersion
	case "installed":
		p.enf ^= PackageInstalled
	default:
		return unknownAttr(KindPackage, attr)
	}
	return nil
}

func MergePackages(p1, p2 *Package) *Package {
	lo, hi := p1, p2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out
	if hi.enf.Has(PackageVersion) && !lo.enf.Has(PackageVersion) {
		merged.version = hi.version
		merged.enf |= PackageVersion
	}
	if hi.enf.Has(PackageInstalled) && !lo.enf.Has(PackageInstalled) {
		merged.installed = hi.installed
		merged.enf |= PackageInstalled
	}
	merged.prio = lo.prio
	return merged
}

func (p *Package) Stat(view LiveView) error {
	p.diff = 0
	version, ok, err := view.PackageInstalled(p.name)
	if err != nil {
		return werr.Wrap(werr.IO, "query package %q", p.name)
	}
	p.liveFound = ok
	p.liveVersion = version

	if p.enf.Has(PackageInstalled) {
		if p.installed != ok {
			p.diff |= PackageInstalled
		}
	}
	if p.enf.Has(PackageVersion) && ok && p.version != "latest" && p.version != version {
		p.diff |= PackageVersion
	}
	if !ok && !p.enf.Has(PackageInstalled) {
		return werr.Wrap(werr.NotFound, "package %q", p.name)
	}
	return nil
}

func (p *Package) Remediate(view LiveView) error {
	if p.diff.Has(PackageInstalled) && !p.installed {
		if err := view.RemovePackage(p.name); err != nil {
			return werr.Wrap(werr.RemediationFailed, "remove package %q", p.name)
		}
		return p.Stat(view)
	}
	if p.diff.Has(PackageInstalled) || p.diff.Has(PackageVersion) {
		version := p.version
		if version == "" {
			version = "latest"
		}
		if err := view.InstallPackage(p.name, version); err != nil {
			return werr.Wrap(werr.RemediationFailed, "install package %q", p.name)
		}
	}
	return p.Stat(view)
}

func (p *Package) Pack() string {
	w := pack.NewWriter("res_package::")
	w.String(p.key).Uint32(uint32(p.enf)).String(p.name).String(p.version).
		Uint8(boolToByte(p.installed)).Uint32(p.prio)
	return w.Done()
}

func UnpackPackage(packed string) (*Package, error) {
	r := pack.NewReader(packed, "res_package::")
	p := &Package{key: r.String()}
	p.enf = Mask(r.Uint32())
	p.name = r.String()
	p.version = r.String()
	p.installed = r.Uint8() != 0
	p.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack package: %w", r.Err())
	}
	return p, nil
}

func (p *Package) Attrs() map[string]string {
	out := map[string]string{}
	if p.enf.Has(PackageVersion) {
		out["version"] = p.version
	}
	if p.enf.Has(PackageInstalled) {
		out["installed"] = fmt.Sprint(p.installed)
	}
	return out
}
