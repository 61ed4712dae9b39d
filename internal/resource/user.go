package resource

import (
	"fmt"

	"warden/internal/werr"
	"warden/pkg/pack"
)

// User attribute bits, ported directly from res_user.h's RES_USER_*
// constants (same shift amounts, same order).
const (
	UserName Mask = 1 << iota
	UserPasswd
	UserUID
	UserGID
	UserGecos
	UserDir
	UserShell
	UserMkhome
	UserPwmin
	UserPwmax
	UserPwwarn
	UserInact
	UserExpire
	UserLock
)

// User is the user-account resource.
type User struct {
	key  string
	prio uint32
	enf  Mask
	diff Mask

	name   string
	passwd string
	uid    uint32
	gid    uint32
	gecos  string
	dir    string
	shell  string
	mkhome bool
	skel   string
	lock   bool
	pwmin  int64
	pwmax  int64
	pwwarn int64
	inact  int64
	expire int64

	live   PasswdEntry
	shadow ShadowEntry
	exists bool
}

// NewUser allocates a User identified by key, enforcing only its name.
func NewUser(key string) *User {
	u := &User{key: key, name: key}
	u.enf |= UserName
	return u
}

func (u *User) Kind() Kind         { return KindUser }
func (u *User) Key() string        { return u.key }
func (u *User) Priority() uint32   { return u.prio }
func (u *User) SetPriority(p uint32) { u.prio = p }
func (u *User) Enforced() Mask     { return u.enf }
func (u *User) Diff() Mask         { return u.diff }

func (u *User) SetAttr(attr, value string) error {
	switch attr {
	case "name":
		u.name = value
		u.enf |= UserName
	case "password-hash":
		u.passwd = value
		u.enf |= UserPasswd
	case "uid":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.uid = uint32(v)
		u.enf |= UserUID
	case "gid":
		v, err := parseUint(value, 32)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.gid = uint32(v)
		u.enf |= UserGID
	case "gecos":
		u.gecos = value
		u.enf |= UserGecos
	case "home-dir":
		u.dir = value
		u.enf |= UserDir
	case "shell":
		u.shell = value
		u.enf |= UserShell
	case "create-home":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.mkhome = v
		u.enf |= UserMkhome
	case "skel-dir":
		u.skel = value
	case "lock":
		v, err := parseBool(value)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.lock = v
		u.enf |= UserLock
	case "password-min-days":
		v, err := parseInt(value, 64)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.pwmin = v
		u.enf |= UserPwmin
	case "password-max-days":
		v, err := parseInt(value, 64)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.pwmax = v
		u.enf |= UserPwmax
	case "password-warn-days":
		v, err := parseInt(value, 64)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.pwwarn = v
		u.enf |= UserPwwarn
	case "inactivity-days":
		v, err := parseInt(value, 64)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.inact = v
		u.enf |= UserInact
	case "expire-date":
		v, err := parseInt(value, 64)
		if err != nil {
			return invalidValue(KindUser, attr, value)
		}
		u.expire = v
		u.enf |= UserExpire
	default:
		return unknownAttr(KindUser, attr)
	}
	return nil
}

func (u *User) UnsetAttr(attr string) error {
	bit, ok := userAttrBit(attr)
	if !ok {
		return unknownAttr(KindUser, attr)
	}
	u.enf ^= bit
	return nil
}

func userAttrBit(attr string) (Mask, bool) {
	switch attr {
	case "name":
		return UserName, true
	case "password-hash":
		return UserPasswd, true
	case "uid":
		return UserUID, true
	case "gid":
		return UserGID, true
	case "gecos":
		return UserGecos, true
	case "home-dir":
		return UserDir, true
	case "shell":
		return UserShell, true
	case "create-home":
		return UserMkhome, true
	case "lock":
		return UserLock, true
	case "password-min-days":
		return UserPwmin, true
	case "password-max-days":
		return UserPwmax, true
	case "password-warn-days":
		return UserPwwarn, true
	case "inactivity-days":
		return UserInact, true
	case "expire-date":
		return UserExpire, true
	}
	return 0, false
}

// MergeUsers merges u2 into u1: enforcement is the union; for
// attributes enforced in both, the value from the numerically smaller
// priority wins. Adapted from res_user_merge, but deliberately not
// reproducing its swap-pointer bug.
func MergeUsers(u1, u2 *User) *User {
	lo, hi := u1, u2
	if lo.prio > hi.prio {
		lo, hi = hi, lo
	}
	out := *lo
	merged := &out

	take := func(bit Mask, apply func()) {
		if hi.enf.Has(bit) && !lo.enf.Has(bit) {
			apply()
			merged.enf |= bit
		}
	}
	take(UserName, func() { merged.name = hi.name })
	take(UserPasswd, func() { merged.passwd = hi.passwd })
	take(UserUID, func() { merged.uid = hi.uid })
	take(UserGID, func() { merged.gid = hi.gid })
	take(UserGecos, func() { merged.gecos = hi.gecos })
	take(UserDir, func() { merged.dir = hi.dir })
	take(UserShell, func() { merged.shell = hi.shell })
	take(UserMkhome, func() { merged.mkhome = hi.mkhome; merged.skel = hi.skel })
	take(UserLock, func() { merged.lock = hi.lock })
	take(UserPwmin, func() { merged.pwmin = hi.pwmin })
	take(UserPwmax, func() { merged.pwmax = hi.pwmax })
	take(UserPwwarn, func() { merged.pwwarn = hi.pwwarn })
	take(UserInact, func() { merged.inact = hi.inact })
	take(UserExpire, func() { merged.expire = hi.expire })
	merged.prio = lo.prio
	return merged
}

func (u *User) Stat(view LiveView) error {
	u.diff = 0

	var entry PasswdEntry
	var found bool
	var err error
	if u.enf.Has(UserUID) {
		entry, found, err = view.LookupUserByUID(u.uid)
		if err != nil {
			return werr.Wrap(werr.IO, "lookup user by uid %d", u.uid)
		}
	}
	if !found && u.enf.Has(UserName) {
		entry, found, err = view.LookupUser(u.name)
		if err != nil {
			return werr.Wrap(werr.IO, "lookup user %q", u.name)
		}
	}
	if !found {
		return werr.Wrap(werr.NotFound, "user %q", u.key)
	}
	u.live = entry
	u.exists = true

	if sp, ok, err := view.LookupShadow(entry.Name); err == nil && ok {
		u.shadow = sp
	}

	if u.enf.Has(UserName) && u.name != u.live.Name {
		u.diff |= UserName
	}
	if u.enf.Has(UserPasswd) && u.passwd != u.shadow.Passwd {
		u.diff |= UserPasswd
	}
	if u.enf.Has(UserUID) && u.uid != u.live.UID {
		u.diff |= UserUID
	}
	if u.enf.Has(UserGID) && u.gid != u.live.GID {
		u.diff |= UserGID
	}
	if u.enf.Has(UserGecos) && u.gecos != u.live.Gecos {
		u.diff |= UserGecos
	}
	if u.enf.Has(UserDir) && u.dir != u.live.Dir {
		u.diff |= UserDir
	}
	if u.enf.Has(UserShell) && u.shell != u.live.Shell {
		u.diff |= UserShell
	}
	if u.enf.Has(UserPwmin) && u.pwmin != u.shadow.Min {
		u.diff |= UserPwmin
	}
	if u.enf.Has(UserPwmax) && u.pwmax != u.shadow.Max {
		u.diff |= UserPwmax
	}
	if u.enf.Has(UserPwwarn) && u.pwwarn != u.shadow.Warn {
		u.diff |= UserPwwarn
	}
	if u.enf.Has(UserInact) && u.inact != u.shadow.Inact {
		u.diff |= UserInact
	}
	if u.enf.Has(UserExpire) && u.expire != u.shadow.Expire {
		u.diff |= UserExpire
	}
	return nil
}

// Remediate applies each bit of Diff. Lock enforcement is a distinct,
// text-level edit of the shadow password field ("User
// password lock"): a sentinel byte is prefixed to (or stripped from)
// the hash rather than changing password content itself.
func (u *User) Remediate(view LiveView) error {
	if u.diff.Has(UserName) {
		u.live.Name = u.name
	}
	if u.diff.Has(UserUID) {
		u.live.UID = u.uid
	}
	if u.diff.Has(UserGID) {
		u.live.GID = u.gid
	}
	if u.diff.Has(UserGecos) {
		u.live.Gecos = u.gecos
	}
	if u.diff.Has(UserDir) {
		u.live.Dir = u.dir
	}
	if u.diff.Has(UserShell) {
		u.live.Shell = u.shell
	}
	if err := view.WriteUser(u.live); err != nil {
		return werr.Wrap(werr.RemediationFailed, "write user %q", u.key)
	}

	if u.diff.Has(UserPasswd) {
		u.shadow.Passwd = applyLock(u.passwd, u.lock)
	}
	if u.enf.Has(UserLock) {
		u.shadow.Passwd = applyLock(u.shadow.Passwd, u.lock)
	}
	if u.diff.Has(UserPwmin) {
		u.shadow.Min = u.pwmin
	}
	if u.diff.Has(UserPwmax) {
		u.shadow.Max = u.pwmax
	}
	if u.diff.Has(UserPwwarn) {
		u.shadow.Warn = u.pwwarn
	}
	if u.diff.Has(UserInact) {
		u.shadow.Inact = u.inact
	}
	if u.diff.Has(UserExpire) {
		u.shadow.Expire = u.expire
	}
	u.shadow.Name = u.live.Name
	if err := view.WriteShadow(u.shadow); err != nil {
		return werr.Wrap(werr.RemediationFailed, "write shadow %q", u.key)
	}

	return u.Stat(view)
}

const lockSentinel = '!'

func applyLock(hash string, lock bool) string {
	locked := len(hash) > 0 && hash[0] == lockSentinel
	switch {
	case lock && !locked:
		return string(lockSentinel) + hash
	case !lock && locked:
		return hash[1:]
	default:
		return hash
	}
}

func (u *User) Pack() string {
	w := pack.NewWriter("res_user::")
	w.String(u.key).Uint32(uint32(u.enf)).
		String(u.name).String(u.passwd).Uint32(u.uid).Uint32(u.gid).
		String(u.gecos).String(u.dir).String(u.shell).
		Uint8(boolToByte(u.mkhome)).String(u.skel).Uint8(boolToByte(u.lock)).
		Int32(int32(u.pwmin)).Int32(int32(u.pwmax)).Int32(int32(u.pwwarn)).
		Int32(int32(u.inact)).Int32(int32(u.expire)).Uint32(u.prio)
	return w.Done()
}

func UnpackUser(packed string) (*User, error) {
	r := pack.NewReader(packed, "res_user::")
	u := &User{
		key: r.String(),
	}
	u.enf = Mask(r.Uint32())
	u.name = r.String()
	u.passwd = r.String()
	u.uid = r.Uint32()
	u.gid = r.Uint32()
	u.gecos = r.String()
	u.dir = r.String()
	u.shell = r.String()
	u.mkhome = r.Uint8() != 0
	u.skel = r.String()
	u.lock = r.Uint8() != 0
	u.pwmin = int64(r.Int32())
	u.pwmax = int64(r.Int32())
	u.pwwarn = int64(r.Int32())
	u.inact = int64(r.Int32())
	u.expire = int64(r.Int32())
	u.prio = r.Uint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("unpack user: %w", r.Err())
	}
	return u, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (u *User) Attrs() map[string]string {
	out := map[string]string{}
	if u.enf.Has(UserName) {
		out["name"] = u.name
	}
	if u.enf.Has(UserUID) {
		out["uid"] = fmt.Sprint(u.uid)
	}
	if u.enf.Has(UserGID) {
		out["gid"] = fmt.Sprint(u.gid)
	}
	if u.enf.Has(UserGecos) {
		out["gecos"] = u.gecos
	}
	if u.enf.Has(UserDir) {
		out["home-dir"] = u.dir
	}
	if u.enf.Has(UserShell) {
		out["shell"] = u.shell
	}
	if u.enf.Has(UserMkhome) {
		out["create-home"] = fmt.Sprint(u.mkhome)
	}
	if u.enf.Has(UserLock) {
		out["lock"] = fmt.Sprint(u.lock)
	}
	if u.enf.Has(UserPwmin) {
		out["password-min-days"] = fmt.Sprint(u.pwmin)
	}
	if u.enf.Has(UserPwmax) {
		out["password-max-days"] = fmt.Sprint(u.pwmax)
	}
	if u.enf.Has(UserPwwarn) {
		out["password-warn-days"] = fmt.Sprint(u.pwwarn)
	}
	if u.enf.Has(UserInact) {
		out["inactivity-days"] = fmt.Sprint(u.inact)
	}
	if u.enf.Has(UserExpire) {
		out["expire-date"] = fmt.Sprint(u.expire)
	}
	return out
}
