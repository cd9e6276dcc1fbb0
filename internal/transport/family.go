package transport

import (
	"fmt"
	"strings"
)

// Family is the IP address family a check is constrained to.
type Family int

const (
	FamilyAny Family = 0
	FamilyV4  Family = 4
	FamilyV6  Family = 6
)

// ParseFamily accepts "", "any", "4", "6", "ipv4" and "ipv6".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "auto":
		return FamilyAny, nil
	case "4", "ipv4", "ip4":
		return FamilyV4, nil
	case "6", "ipv6", "ip6":
		return FamilyV6, nil
	default:
		return FamilyAny, fmt.Errorf("unknown IP family %q (want any, 4 or 6)", s)
	}
}

// Network appends the family suffix to base ("tcp" -> "tcp4").
func (f Family) Network(base string) string {
	switch f {
	case FamilyV4:
		return base + "4"
	case FamilyV6:
		return base + "6"
	default:
		return base
	}
}

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "4"
	case FamilyV6:
		return "6"
	default:
		return "any"
	}
}
