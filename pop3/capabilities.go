package pop3

import (
	"sort"
	"strconv"
	"strings"
)

// Capability is one flag from the closed vocabulary a CAPA response can
// set. Unrecognized keywords are kept verbatim in Extensions instead.
type Capability int

const (
	CapUser Capability = iota
	CapApop
	CapSasl
	CapStls
	CapTop
	CapUidl
	CapPipelining
	CapResponseCodes
	CapExpire
	CapLoginDelay
	CapLang
	CapUtf8
	CapUtf8User
)

// CapabilitySet is the parsed result of a CAPA command (or, on CAPA
// failure, the User-only fallback described in the specification).
type CapabilitySet struct {
	flags          map[Capability]bool
	AuthMechanisms map[string]bool
	ExpirePolicy   int // -1 never, 0 unset, n days
	LoginDelay     int
	Implementation string
	ApopTimestamp  []byte
	Extensions     map[string][]string
}

// NewCapabilitySet returns an empty capability set with no flags.
func NewCapabilitySet() *CapabilitySet {
	return &CapabilitySet{
		flags:          make(map[Capability]bool),
		AuthMechanisms: make(map[string]bool),
		Extensions:     make(map[string][]string),
	}
}

// userOnlyFallback builds the capability set used when the server's
// CAPA command itself fails, per §4.C.
func userOnlyFallback() *CapabilitySet {
	cs := NewCapabilitySet()
	cs.flags[CapUser] = true
	return cs
}

// Has reports whether a flag is set.
func (c *CapabilitySet) Has(cap Capability) bool {
	return c.flags[cap]
}

func (c *CapabilitySet) set(cap Capability) {
	c.flags[cap] = true
}

// ParseCapabilities parses the body lines of a successful multi-line
// CAPA response (the lines between the +OK status and the terminating
// "."; dot-unstuffing must already have been applied by the reader).
func ParseCapabilities(lines [][]byte) *CapabilitySet {
	cs := NewCapabilitySet()
	for _, raw := range lines {
		fields := strings.Fields(string(raw))
		if len(fields) == 0 {
			continue
		}
		keyword := strings.ToUpper(fields[0])
		args := fields[1:]
		switch keyword {
		case "USER":
			cs.set(CapUser)
		case "APOP":
			cs.set(CapApop)
		case "SASL":
			cs.set(CapSasl)
			for _, m := range args {
				cs.AuthMechanisms[strings.ToUpper(m)] = true
			}
		case "STLS":
			cs.set(CapStls)
		case "TOP":
			cs.set(CapTop)
		case "UIDL":
			cs.set(CapUidl)
		case "PIPELINING":
			cs.set(CapPipelining)
		case "RESP-CODES":
			cs.set(CapResponseCodes)
		case "EXPIRE":
			cs.set(CapExpire)
			if len(args) > 0 {
				if strings.EqualFold(args[0], "NEVER") {
					cs.ExpirePolicy = -1
				} else if n, err := strconv.Atoi(args[0]); err == nil {
					cs.ExpirePolicy = n
				}
			}
		case "LOGIN-DELAY":
			cs.set(CapLoginDelay)
			if len(args) > 0 {
				if n, err := strconv.Atoi(args[0]); err == nil {
					cs.LoginDelay = n
				}
			}
		case "IMPLEMENTATION":
			cs.Implementation = strings.Join(args, " ")
		case "LANG":
			cs.set(CapLang)
		case "UTF8":
			cs.set(CapUtf8)
			for _, a := range args {
				if strings.EqualFold(a, "USER") {
					cs.set(CapUtf8User)
				}
			}
		default:
			cs.Extensions[keyword] = args
		}
	}
	return cs
}

// Replace overwrites every field of c with the contents of other. Per
// the specification's resolved open question, a post-STLS or post-auth
// re-CAPA always replaces the capability set wholesale; fields are never
// merged across the two sets.
func (c *CapabilitySet) Replace(other *CapabilitySet) {
	*c = *other
}

// AddUidlProbeSuccess records that an ad-hoc "UIDL 1" probe succeeded,
// so that UIDL is now known to be supported for the rest of the
// session even though CAPA never advertised it.
func (c *CapabilitySet) AddUidlProbeSuccess() {
	c.set(CapUidl)
}

var capabilityNames = map[Capability]string{
	CapUser:          "USER",
	CapApop:          "APOP",
	CapSasl:          "SASL",
	CapStls:          "STLS",
	CapTop:           "TOP",
	CapUidl:          "UIDL",
	CapPipelining:    "PIPELINING",
	CapResponseCodes: "RESP-CODES",
	CapExpire:        "EXPIRE",
	CapLoginDelay:    "LOGIN-DELAY",
	CapLang:          "LANG",
	CapUtf8:          "UTF8",
	CapUtf8User:      "UTF8=USER",
}

// String lists every set flag and extension keyword, for diagnostic
// output; the order follows the Capability iota, then extensions
// sorted for determinism.
func (c *CapabilitySet) String() string {
	var names []string
	for cap := CapUser; cap <= CapUtf8User; cap++ {
		if c.flags[cap] {
			names = append(names, capabilityNames[cap])
		}
	}
	exts := make([]string, 0, len(c.Extensions))
	for k := range c.Extensions {
		exts = append(exts, k)
	}
	sort.Strings(exts)
	names = append(names, exts...)
	return strings.Join(names, ", ")
}
