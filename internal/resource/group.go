package resource

import (
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// Group attribute bits, ported directly from res_group.h's RES_GROUP_*
// constants.
const (
	GroupName Mask = 1 << (iota + 1)
	GroupPasswd
	GroupGID
	GroupMembers
	GroupAdmins
)

// Group is the group-account resource.
//
// Membership is expressed as two disjoint sets per the contract for "Group
// membership semantics": memberAdd/memberRemove and adminAdd/adminRemove,
// mirroring res_group's rg_mem_add/rg_mem_rm/rg_adm_add/rg_adm_rm
// stringlist triples. Remediation computes current ∪ add − remove;
// names absent from both sets are left untouched.
type Group struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	name   string
	passwd string
	gid    uint32

	memberAdd    []string
	memberRemove []string
	adminAdd     []string
	adminRemove  []string

	live    GroupEntry
	liveAdm GshadowEntry
}

// NewGroup allocates a Group identified by key, enforcing only its name.
func NewGroup(key string) *Group {
	g := &Group{key: key, name: key}
	g.enf |= GroupName
	return g
}

func (g *Group) Kind() Kind           { return KindGroup }
func (g *Group) Key() string          { return g.key }
func (g *Group) Priority() uint32     { return g.prio }
func (g *Group) SetPriority(p uint32) { g.prio = p }
func (g *Group) Enforced() Mask       { return g.enf }
func (g *Group) Diff() Mask           { return g.diff }

func (g *Group) SetAttr(attr, value string) error {
	switch attr {
	case "name":
		g.name = value
		g.enf |= GroupName
	case "password":
		g.passwd = value
		g.enf |= GroupPasswd
	case "gid":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindGroup, attr, value)
		}
		g.gid = uint32(v)
		g.enf |= GroupGID
	case "additive-members":
		if overlaps(g.memberRemove, value) {
			return invalidValue(KindGroup, attr, value)
		}
		g.memberAdd = appendUnique(g.memberAdd, value)
		g.enf |= GroupMembers
	case "removed-members":
		if overlaps(g.memberAdd, value) {
			return invalidValue(KindGroup, attr, value)
		}
		g.memberRemove = appendUnique(g.memberRemove, value)
		g.enf |= GroupMembers
	case "additive-admins":
		if overlaps(g.adminRemove, value) {
			return invalidValue(KindGroup, attr, value)
		}
		g.adminAdd = appendUnique(g.adminAdd, value)
		g.enf |= GroupAdmins
	case "removed-admins":
		if overlaps(g.adminAdd, value) {
			return invalidValue(KindGroup, attr, value)
		}
		g.adminRemove = appendUnique(g.adminRemove, value)
		g.enf |= GroupAdmins
	default:
		return unknownAttr(KindGroup, attr)
	}
	return nil
}

func overlaps(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func appendUnique(set []string, v string) []string {
	if overlaps(set, v) {
		return set
	}
	return append(set, v)
}

func (g *Group) UnsetAttr(attr string) error {
	switch attr {
	case "name":
		g.enf ^= GroupName
	case "password":
		g.enf ^= GroupPasswd
	case "gid":
		g.enf ^= GroupGID
	case "additive-members", "removed-members":
		g.enf ^= GroupMembers
	case "additive-admins", "removed-admins":
		g.enf ^= GroupAdmins
	default:
		return unknownAttr(KindGroup, attr)
	}
	return nil
}

// MergeGroups merges g2 into g1 per the same priority-wins contract as
// MergeUsers, ported from res_group_merge.
func MergeGroups(g1, g2 *Group) *Group {
	lo, hi := g1, g2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out

	if hi.enf.Has(GroupName) && !lo.enf.Has(GroupName) {
		merged.name = hi.name
		merged.enf |= GroupName
	}
	if hi.enf.Has(GroupPasswd) && !lo.enf.Has(GroupPasswd) {
		merged.passwd = hi.passwd
		merged.enf |= GroupPasswd
	}
	if hi.enf.Has(GroupGID) && !lo.enf.Has(GroupGID) {
		merged.gid = hi.gid
		merged.enf |= GroupGID
	}
	if hi.enf.Has(GroupMembers) {
		merged.memberAdd = mergeStringSets(lo.memberAdd, hi.memberAdd)
		merged.memberRemove = mergeStringSets(lo.memberRemove, hi.memberRemove)
		merged.enf |= GroupMembers
	}
	if hi.enf.Has(GroupAdmins) {
		merged.adminAdd = mergeStringSets(lo.adminAdd, hi.adminAdd)
		merged.adminRemove = mergeStringSets(lo.adminRemove, hi.adminRemove)
		merged.enf |= GroupAdmins
	}
	merged.prio = lo.prio
	return merged
}

func mergeStringSets(a, b []string) []string {
	out := append([]string{}, a...)
	for _, v := range b {
		out = appendUnique(out, v)
	}
	return out
}

func (g *Group) Stat(view LiveView) error {
	g.diff = 0

	var entry GroupEntry
	var found bool
	var err error
	if g.enf.Has(GroupGID) {
		entry, found, err = view.LookupGroupByGID(g.gid)
		if err != nil {
			return werr.Wrap(werr.IO, "lookup group by gid %d", g.gid)
		}
	}
	if !found && g.enf.Has(GroupName) {
		entry, found, err = view.LookupGroup(g.name)
		if err != nil {
			return werr.Wrap(werr.IO, "lookup group %q", g.name)
		}
	}
	if !found {
		return werr.Wrap(werr.NotFound, "group %q", g.key)
	}
	g.live = entry

	if sg, ok, err := view.LookupGshadow(entry.Name); err == nil && ok {
		g.liveAdm = sg
	}

	if g.enf.Has(GroupName) && g.name != g.live.Name {
		g.diff |= GroupName
	}
	if g.enf.Has(GroupPasswd) && g.passwd != g.live.Passwd {
		g.diff |= GroupPasswd
	}
	if g.enf.Has(GroupGID) && g.gid != g.live.GID {
		g.diff |= GroupGID
	}
	if g.enf.Has(GroupMembers) && membershipDiffers(g.live.Members, g.memberAdd, g.memberRemove) {
		g.diff |= GroupMembers
	}
	if g.enf.Has(GroupAdmins) && membershipDiffers(g.liveAdm.Admins, g.adminAdd, g.adminRemove) {
		g.diff |= GroupAdmins
	}
	return nil
}

func membershipDiffers(live, add, remove []string) bool {
	want := applyMembership(live, add, remove)
	if len(want) != len(live) {
		return true
	}
	liveSet := map[string]bool{}
	for _, m := range live {
		liveSet[m] = true
	}
	for _, m := range want {
		if !liveSet[m] {
			return true
		}
	}
	return false
}

// applyMembership computes current ∪ add − remove, per the merge contract.
func applyMembership(live, add, remove []string) []string {
	removeSet := map[string]bool{}
	for _, r := range remove {
		removeSet[r] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range live {
		if removeSet[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	for _, m := range add {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func (g *Group) Remediate(view LiveView) error {
	if g.diff.Has(GroupName) {
		g.live.Name = g.name
	}
	if g.diff.Has(GroupPasswd) {
		g.live.Passwd = g.passwd
	}
	if g.diff.Has(GroupGID) {
		g.live.GID = g.gid
	}
	if g.diff.Has(GroupMembers) {
		g.live.Members = applyMembership(g.live.Members, g.memberAdd, g.memberRemove)
	}
	if err := view.WriteGroup(g.live); err != nil {
		return werr.Wrap(werr.RemediationFailed, "write group %q", g.key)
	}

	if g.diff.Has(GroupAdmins) {
		g.liveAdm.Name = g.live.Name
		g.liveAdm.Admins = applyMembership(g.liveAdm.Admins, g.adminAdd, g.adminRemove)
		if err := view.WriteGshadow(g.liveAdm); err != nil {
			return werr.Wrap(werr.RemediationFailed, "write gshadow %q", g.key)
		}
	}

	return g.Stat(view)
}

func (g *Group) Pack() string {
	w := pack.NewWriter("res_group::")
	w.String(g.key).Uint32(uint32(g.enf)).
		String(g.name).String(g.passwd).Uint32(g.gid).
		Raw(packStringList(g.memberAdd)).Raw(packStringList(g.memberRemove)).
		Raw(packStringList(g.adminAdd)).Raw(packStringList(g.adminRemove)).
		Uint32(g.prio)
	return w.Done()
}

func packStringList(list []string) string {
	w := pack.NewWriter("")
	w.Uint32(uint32(len(list)))
	for _, s := range list {
		w.String(s)
	}
	return w.Done()
}

func unpackStringList(r *pack.Reader) []string {
	n := r.Uint32()
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, r.String())
	}
	return out
}

func UnpackGroup(packed string) (*Group, error) {
	r := pack.NewReader(packed, "res_group::")
	g := &Group{key: r.String()}
	g.enf = Mask(r.Uint32())
	g.name = r.String()
	g.passwd = r.String()
	g.gid = r.Uint32()
	g.memberAdd = unpackStringList(r)
	g.memberRemove = unpackStringList(r)
	g.adminAdd = unpackStringList(r)
	g.adminRemove = unpackStringList(r)
	g.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack group: %w", r.Err())
	}
	return g, nil
}

func (g *Group) Attrs() map[string]string {
	out := map[string]string{}
	if g.enf.Has(GroupName) {
		out["name"] = g.name
	}
	if g.enf.Has(GroupGID) {
		out["gid"] = fmt.Sprint(g.gid)
	}
	if g.enf.Has(GroupMembers) {
		out["additive-members"] = fmt.Sprint(g.memberAdd)
		out["removed-members"] = fmt.Sprint(g.memberRemove)
	}
	if g.enf.Has(GroupAdmins) {
		out["additive-admins"] = fmt.Sprint(g.adminAdd)
		out["removed-admins"] = fmt.Sprint(g.adminRemove)
	}
	return out
}
