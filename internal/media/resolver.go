// Package media turns stored asset references into fetchable addresses.
package media

import "strings"

// Resolver joins relative asset references onto a configured base address.
type Resolver struct {
	base string
}

func NewResolver(base string) Resolver {
	return Resolver{base: strings.TrimSpace(base)}
}

func (r Resolver) Base() string {
	return r.base
}

// Resolve never fails: empty input yields "", absolute references pass
// through, anything else is appended to the base.
func (r Resolver) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if HasScheme(ref) {
		return ref
	}
	if r.base == "" {
		return ref
	}
	base := strings.TrimRight(r.base, "/")
	return base + "/" + strings.TrimLeft(ref, "/")
}

// Available reports whether ref resolves to an address at all.
func (r Resolver) Available(ref string) bool {
	return r.Resolve(ref) != ""
}

// HasScheme reports whether ref starts with an RFC 3986 scheme followed by ':'.
func HasScheme(ref string) bool {
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9', c == '+', c == '-', c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}
