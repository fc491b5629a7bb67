package prefs

import (
	"hash/fnv"
	"strconv"
	"strings"

	"frampref-go/errcode"
)

// KeyOf hashes a preference name to its 32-bit key (FNV-1).
func KeyOf(name string) uint32 {
	return fnv1([]byte(name))
}

func fnv1(b []byte) uint32 {
	h := fnv.New32()
	_, _ = h.Write(b)
	return h.Sum32()
}

// ParseKey reads "0x"-prefixed hex as a literal key and hashes anything
// else with KeyOf.
func ParseKey(s string) (uint32, error) {
	if s == "" {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "key", Msg: "empty key"}
	}
	if h, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return 0, &errcode.E{C: errcode.InvalidParams, Op: "key", Msg: s}
		}
		return uint32(v), nil
	}
	return KeyOf(s), nil
}
