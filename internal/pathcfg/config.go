package pathcfg

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"warden/internal/container"
	"warden/internal/werr"
)

// Config is a line-oriented key/value store: one "key value" pair per
// line, "#" starts a comment to end of line, blank lines are ignored,
// and there is no nesting. It backs warden's own config files the way
// cw_cfg_set/get/isset/read did for the original daemon.
type Config struct {
	entries *container.OrderedMap[string]
}

// New returns an empty Config.
func New() *Config {
	return &Config{entries: container.NewOrderedMap[string]()}
}

// Set stores value under key, last write wins on a direct Set/Read,
// overwriting any prior value while keeping the key's original
// position for iteration.
func (c *Config) Set(key, value string) {
	c.entries.Set(key, value)
}

// Get returns the value stored under key, if any.
func (c *Config) Get(key string) (string, bool) {
	return c.entries.Get(key)
}

// IsSet reports whether key has a value.
func (c *Config) IsSet(key string) bool {
	return c.entries.Has(key)
}

// Keys returns the configured keys in first-seen order.
func (c *Config) Keys() []string {
	return c.entries.Keys()
}

// Each calls fn for every key/value pair in first-seen order.
func (c *Config) Each(fn func(key, value string)) {
	c.entries.Each(fn)
}

// Read parses a config stream into c. A later "key value" line for a
// key already seen earlier in the SAME stream overwrites it (last
// write wins on read), matching cw_cfg_read's line-by-line pass.
func Read(r io.Reader) (*Config, error) {
	c := New()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		key, value, ok := splitKV(text)
		if !ok {
			return nil, werr.Wrap(werr.ParseError, "pathcfg: line %d: expected \"key value\"", line)
		}
		c.Set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, werr.Wrap(werr.IO, "pathcfg: read: %v", err)
	}
	return c, nil
}

func splitKV(text string) (key, value string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", "", false
	}
	key = fields[0]
	value = strings.TrimSpace(strings.TrimPrefix(text, key))
	return key, value, true
}

// Merge copies every key of src into dest that dest does not already
// have, first write wins: a key dest already holds is left untouched
// even if src carries a different value for it. This is the opposite
// tiebreak from Read on purpose, matching cw_cfg_uniq's merge-into
// semantics where the destination config takes priority over any
// defaults being merged in.
func Merge(dest, src *Config) {
	dest.entries.Merge(src.entries)
}

// String renders c back out in the "key value" wire form, one pair
// per line, in first-seen order.
func (c *Config) String() string {
	var b strings.Builder
	c.Each(func(k, v string) {
		fmt.Fprintf(&b, "%s %s\n", k, v)
	})
	return b.String()
}
