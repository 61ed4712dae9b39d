package manifest

import "strings"

// interpolate substitutes $name and ${name} references in s from the
// local scope first, then the fact hash (a local entry shadows a fact of
// the same name; a name found in neither expands to "").
func interpolate(s string, facts, locals map[string]string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				sb.WriteByte(s[i])
				continue
			}
			name := s[i+2 : i+2+end]
			sb.WriteString(lookup(name, facts, locals))
			i += 2 + end
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			sb.WriteByte(s[i])
			continue
		}
		name := s[i+1 : j]
		sb.WriteString(lookup(name, facts, locals))
		i = j - 1
	}
	return sb.String()
}

func lookup(name string, facts, locals map[string]string) string {
	if v, ok := locals[name]; ok {
		return v
	}
	return facts[name]
}

func isNameByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
