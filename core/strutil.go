package core

import "strconv"

// Number formatting goes through strconv rather than fmt: the fmt
// package drags reflection into the TinyGo binary for no benefit here.

func itoa(n int) string {
	return strconv.Itoa(n)
}

func utoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}

// valueToString renders a dictionary constant. All constant types are
// known at registration time; anything else renders empty.
func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return itoa(val)
	case int32:
		return itoa(int(val))
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return utoa(uint32(val))
	case uint32:
		return utoa(val)
	case uint64:
		return strconv.FormatUint(val, 10)
	default:
		return ""
	}
}
