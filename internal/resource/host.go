package resource

import (
	"fmt"
	"sort"
	"strings"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// Host attribute bits covering hostnames. Grounded on
// host_registry.c's host_entry_find_by_fqdn/ipv4/ipv6 lookup trio: the
// hosts file is a keyed mapping from canonical hostname to
// (ipv4, ipv6, aliases), per the keyed-hostname membership model.
const (
	HostAliases Mask = 1 << iota
	HostIPv4
	HostIPv6
)

// Host is the /etc/hosts-style resource, keyed by canonical hostname.
type Host struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	fqdn    string
	aliases []string
	ipv4    string
	ipv6    string

	live HostEntry
	exists bool
}

func NewHost(fqdn string) *Host {
	return &Host{key: fqdn, fqdn: fqdn}
}

func (h *Host) Kind() Kind           { return KindHost }
func (h *Host) Key() string          { return h.key }
func (h *Host) Priority() uint32     { return h.prio }
func (h *Host) SetPriority(v uint32) { h.prio = v }
func (h *Host) Enforced() Mask       { return h.enf }
func (h *Host) Diff() Mask           { return h.diff }

func (h *Host) SetAttr(attr, value string) error {
	switch attr {
	case "aliases":
		h.aliases = appendUnique(h.aliases, value)
		h.enf |= HostAliases
	case "ipv4":
		h.ipv4 = value
		h.enf |= HostIPv4
	case "ipv6":
		h.ipv6 = value
		h.enf |= HostIPv6
	default:
		return unknownAttr(KindHost, attr)
	}
	return nil
}

func (h *Host) UnsetAttr(attr string) error {
	switch attr {
	case "aliases":
		h.enf ^= HostAliases
	case "ipv4":
		h.enf ^= HostIPv4
	case "ipv6":
		h.enf ^= HostIPv6
	default:
		return unknownAttr(KindHost, attr)
	}
	return nil
}

func MergeHosts(h1, h2 *Host) *Host {
	lo, hi := h1, h2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out
	if hi.enf.Has(HostAliases) {
		merged.aliases = mergeStringSets(lo.aliases, hi.aliases)
		merged.enf |= HostAliases
	}
	if hi.enf.Has(HostIPv4) && !lo.enf.Has(HostIPv4) {
		merged.ipv4 = hi.ipv4
		merged.enf |= HostIPv4
	}
	if hi.enf.Has(HostIPv6) && !lo.enf.Has(HostIPv6) {
		merged.ipv6 = hi.ipv6
		merged.enf |= HostIPv6
	}
	merged.prio = lo.prio
	return merged
}

func (h *Host) Stat(view LiveView) error {
	h.diff = 0
	entry, found, err := view.LookupHost(h.fqdn)
	if err != nil {
		return werr.Wrap(werr.IO, "lookup host %q", h.fqdn)
	}
	h.exists = found
	if !found {
		h.diff = h.enf
		return werr.Wrap(werr.NotFound, "host %q", h.fqdn)
	}
	h.live = entry

	if h.enf.Has(HostIPv4) && h.ipv4 != entry.IPv4 {
		h.diff |= HostIPv4
	}
	if h.enf.Has(HostIPv6) && h.ipv6 != entry.IPv6 {
		h.diff |= HostIPv6
	}
	if h.enf.Has(HostAliases) && !sameSet(h.aliases, entry.Aliases) {
		h.diff |= HostAliases
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	return strings.Join(sa, ",") == strings.Join(sb, ",")
}

func (h *Host) Remediate(view LiveView) error {
	if !h.exists {
		h.live = HostEntry{Hostname: h.fqdn}
	}
	if h.diff.Has(HostIPv4) {
		h.live.IPv4 = h.ipv4
	}
	if h.diff.Has(HostIPv6) {
		h.live.IPv6 = h.ipv6
	}
	if h.diff.Has(HostAliases) {
		h.live.Aliases = append([]string{}, h.aliases...)
	}
	h.live.Hostname = h.fqdn
	if err := view.WriteHost(h.live); err != nil {
		return werr.Wrap(werr.RemediationFailed, "write host %q", h.fqdn)
	}
	return h.Stat(view)
}

func (h *Host) Pack() string {
	w := pack.NewWriter("res_host::")
	w.String(h.key).Uint32(uint32(h.enf)).String(h.fqdn).
		Raw(packStringList(h.aliases)).String(h.ipv4).String(h.ipv6).Uint32(h.prio)
	return w.Done()
}

func UnpackHost(packed string) (*Host, error) {
	r := pack.NewReader(packed, "res_host::")
	h := &Host{key: r.String()}
	h.enf = Mask(r.Uint32())
	h.fqdn = r.String()
	h.aliases = unpackStringList(r)
	h.ipv4 = r.String()
	h.ipv6 = r.String()
	h.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack host: %w", r.Err())
	}
	return h, nil
}

func (h *Host) Attrs() map[string]string {
	out := map[string]string{}
	if h.enf.Has(HostAliases) {
		out["aliases"] = strings.Join(h.aliases, ",")
	}
	if h.enf.Has(HostIPv4) {
		out["ipv4"] = h.ipv4
	}
	if h.enf.Has(HostIPv6) {
		out["ipv6"] = h.ipv6
	}
	return out
}
