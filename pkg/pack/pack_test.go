package pack

import (
	"errors"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	w := NewWriter("res_test::")
	w.String("bourbon").Uint32(0x0000000d).Int32(-1).Uint16(0x7d0)
	packed := w.Done()

	r := NewReader(packed, "res_test::")
	if got := r.String(); got != "bourbon" {
		t.Fatalf("expected bourbon, got %q", got)
	}
	if got := r.Uint32(); got != 0x0000000d {
		t.Fatalf("expected 0xd, got %x", got)
	}
	if got := r.Int32(); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
	if got := r.Uint16(); got != 0x7d0 {
		t.Fatalf("expected 0x7d0, got %x", got)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func TestInt32MinusOneEncodesAllF(t *testing.T) {
	w := NewWriter("x::")
	w.Int32(-1)
	if got := w.Done(); got != "x::ffffffff" {
		t.Fatalf("expected x::ffffffff, got %q", got)
	}
}

func TestInt32ZeroEncodesAllZero(t *testing.T) {
	w := NewWriter("x::")
	w.Int32(0)
	if got := w.Done(); got != "x::00000000" {
		t.Fatalf("expected x::00000000, got %q", got)
	}
}

func TestStringEscaping(t *testing.T) {
	w := NewWriter("p::")
	w.String(`say "hi"`)
	packed := w.Done()
	if packed != `p::"say \"hi\""` {
		t.Fatalf("unexpected escaped packing: %q", packed)
	}

	r := NewReader(packed, "p::")
	if got := r.String(); got != `say "hi"` {
		t.Fatalf("expected unescaped round trip, got %q", got)
	}
}

func TestPrefixMismatch(t *testing.T) {
	r := NewReader(`other::"x"`, "res_user::")
	if !errors.Is(r.Err(), ErrPrefix) {
		t.Fatalf("expected ErrPrefix, got %v", r.Err())
	}
}

func TestTruncatedIntField(t *testing.T) {
	w := NewWriter("x::")
	w.Raw("ab") // only 2 of 8 hex chars for an Int32
	r := NewReader(w.Done(), "x::")
	r.Int32()
	if !errors.Is(r.Err(), ErrFormat) {
		t.Fatalf("expected ErrFormat for truncated field, got %v", r.Err())
	}
}

// Scenario 3: User(key="bourbon", enf={name,uid,gid},
// name="bourbon", uid=101, gid=2000, prio=1).
func TestUserPackScenario(t *testing.T) {
	const enfNameUIDGID = 0x0000000d // matches the worked enforcement mask for name+uid+gid
	w := NewWriter("res_user::")
	w.String("bourbon").Uint32(enfNameUIDGID).String("bourbon").Uint32(101).Uint32(2000)
	packed := w.Done()

	r := NewReader(packed, "res_user::")
	key := r.String()
	enf := r.Uint32()
	name := r.String()
	uid := r.Uint32()
	gid := r.Uint32()
	if r.Err() != nil {
		t.Fatalf("unexpected decode error: %v", r.Err())
	}
	if key != "bourbon" || enf != enfNameUIDGID || name != "bourbon" || uid != 101 || gid != 2000 {
		t.Fatalf("round trip mismatch: key=%s enf=%x name=%s uid=%d gid=%d", key, enf, name, uid, gid)
	}
}
