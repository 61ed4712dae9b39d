package resource

import "strconv"

// parseUint accepts decimal, octal (leading 0) and hex (leading 0x),
// matching how numeric attribute values are written in manifests.
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

func parseInt(s string, bits int) (int64, error) {
	return strconv.ParseInt(s, 0, bits)
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
