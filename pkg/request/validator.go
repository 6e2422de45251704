package request

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Numeric attributes whose values must parse cleanly as integers with no
// trailing garbage. The microsecond attributes additionally must lie in
// [0, 1000000).
var numericTopAttrs = []struct {
	key   string
	label string
}{
	{"predelay", "// Request pre-delay "},
	{"postdelay", "// Request post-delay "},
	{"timeout_sec", "// Request timeout whole seconds "},
	{"timeout_usec", "// Request timeout fractional microseconds "},
	{"memory", "// Request memory "},
	{"size", "// Request size "},
	{"unresponsive_for_sec", "// Request unresponsive whole seconds "},
	{"unresponsive_for_usec", "// Request unresponsive fractional microseconds "},
}

// Validate runs the semantic checks over a parsed model. It is total (it
// never stops at the first problem) and pure apart from the
// canonicalization the parser has already performed. Each failure appends
// a human-readable message of one or two lines to the returned text; the
// lines keep a
// leading "// " so they remain comments when embedded in lint graph
// output. Returns the number of failures and the concatenated messages.
func Validate(m *Model) (int, string) {
	v := &validator{}

	names := make([]string, 0, len(m.Nodes))
	for name := range m.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attrs := m.Nodes[name].Attrs
		if _, ok := attrs["url"]; !ok {
			_, hasHost := attrs["hostname"]
			_, hasPort := attrs["port"]
			if !hasHost || !hasPort {
				v.failf("// Node Definition for %s must contain either\n// a url or both hostname and port attributes.\n", name)
			}
		}
		if port, ok := attrs["port"]; ok {
			v.checkNum(port, "// Port definition ")
		}
		if hostname, ok := attrs["hostname"]; ok {
			if strings.Contains(hostname, `"`) {
				v.failf("// hostname should not contain double quotes\n// %s\n", hostname)
			}
		}
	}

	dests := make([]string, 0, len(m.Destinations))
	for name := range m.Destinations {
		dests = append(dests, name)
	}
	sort.Strings(dests)
	for _, name := range dests {
		if _, ok := m.Nodes[name]; !ok {
			v.failf("// Destination node %s not defined\n", name)
		}
	}

	if response, ok := m.TopAttrs["response"]; ok {
		code, clean := v.checkNum(response, "// Request response code specification ")
		if clean && (code <= 0 || code >= 600) {
			v.failf("// Request response code specification %d\n// does not seem like a HTTP response code\n", code)
		}
	} else {
		v.failf("//  Request response code specification missing\n")
	}

	for _, attr := range numericTopAttrs {
		value, ok := m.TopAttrs[attr.key]
		if !ok {
			continue
		}
		n, clean := v.checkNum(value, attr.label)
		if clean && strings.HasSuffix(attr.key, "_usec") && (n < 0 || n >= 1000000) {
			v.failf("%sshould be at least zero and less than 1 Million: %s\n", attr.label, value)
		}
	}

	if healthy, ok := m.TopAttrs["healthy"]; ok {
		if healthy != "true" && healthy != "false" {
			v.failf("// Request healthy attribute must be true or false, not %s\n", healthy)
		}
	}

	return v.count, v.msgs.String()
}

type validator struct {
	count int
	msgs  strings.Builder
}

func (v *validator) failf(format string, args ...any) {
	v.count++
	fmt.Fprintf(&v.msgs, format, args...)
}

// checkNum verifies that value holds an integer with no trailing garbage.
// It reports the parsed integer and whether the value was clean.
func (v *validator) checkNum(value, label string) (int, bool) {
	digits := 0
	for digits < len(value) {
		c := value[digits]
		if c == '-' && digits == 0 {
			digits++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		digits++
	}
	if digits == 0 || value[:digits] == "-" {
		v.failf("%sis not a valid integer\n//  %s\n", label, value)
		return 0, false
	}
	n, err := strconv.Atoi(value[:digits])
	if err != nil {
		v.failf("%sis out of range\n//  %s\n", label, value)
		return 0, false
	}
	if remains := value[digits:]; remains != "" {
		v.failf("%scontains trailing garbage\n//  %d  %s\n", label, n, remains)
		return n, false
	}
	return n, true
}
