// Package uuidutil expands virtual machine identifiers into every plausible
// alternate representation. Some hypervisors report guest UUIDs with the
// first three hyphen groups byte-swapped (little endian), and some report
// uppercase where the guest itself reports lowercase, so any match against
// stored guest identifiers has to consider all encodings.
package uuidutil

import (
	"strings"

	"github.com/google/uuid"
)

// PossibleRepresentations returns the candidate encodings for a raw
// identifier: the input itself, its lowercase form, and for UUID-shaped input
// the endian-swapped variant of the first three groups plus its lowercase
// form. It is pure and never fails; malformed input simply yields a smaller
// set.
func PossibleRepresentations(id string) []string {
	out := make([]string, 0, 4)
	add := func(s string) {
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(id)
	add(strings.ToLower(id))
	if swapped, ok := swapByteOrder(id); ok {
		add(swapped)
		add(strings.ToLower(swapped))
	}
	return out
}

// swapByteOrder reverses the byte ordering of the first three hyphen groups
// of a canonically formed UUID, converting between the big and little endian
// encodings seen in hypervisor reports. Character case is preserved.
func swapByteOrder(id string) (string, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		// uuid.Parse also accepts unhyphenated and urn forms; only the
		// canonical shape has documented endian variants.
		return "", false
	}
	for i := 0; i < 3; i++ {
		parts[i] = reverseBytePairs(parts[i])
	}
	return strings.Join(parts, "-"), true
}

func reverseBytePairs(group string) string {
	out := make([]byte, len(group))
	for i := 0; i < len(group); i += 2 {
		out[len(group)-2-i] = group[i]
		out[len(group)-1-i] = group[i+1]
	}
	return string(out)
}
