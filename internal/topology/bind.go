package topology

import (
	"net"
	"strconv"
	"strings"

	perr "connprobe/internal/errors"
	"connprobe/internal/transport"
	"connprobe/util"
)

// Check is a check with its parameters substituted.  Err holds a
// parameter that could not be coerced; the check reports it as NG
// instead of running.
type Check struct {
	Kind   Kind
	Host   string
	Port   int
	Family transport.Family
	Err    error

	// PortValue is the port parameter as given, kept so a value that
	// failed to parse is still shown as the caller wrote it.
	PortValue string
}

// Target is the human-readable thing being checked.  A port that
// failed to parse is shown as given.
func (c Check) Target() string {
	port := strconv.Itoa(c.Port)
	if c.Port == 0 && c.PortValue != "" {
		port = c.PortValue
	}
	switch c.Kind {
	case KindLocalPort:
		return port
	case KindPing:
		return c.Host
	case KindTCP:
		if c.Port != 0 {
			return util.FormatAddr(c.Host, c.Port)
		}
	}
	return net.JoinHostPort(c.Host, port)
}

// BoundSection is a section whose checks are ready to run.
type BoundSection struct {
	Title  string
	Checks []Check
}

// Bind substitutes params into the mode's checks.  Keys absent from
// params take their field default.  Malformed values never fail the
// bind; they are carried on the affected check.
func (m *Mode) Bind(params map[string]string) []BoundSection {
	lookup := func(key string) string {
		if v, ok := params[key]; ok {
			return strings.TrimSpace(v)
		}
		return m.defaults[key]
	}

	family, famErr := transport.ParseFamily(params[ParamIPFamily])
	if famErr != nil {
		famErr = &perr.ParamError{Key: ParamIPFamily, Value: params[ParamIPFamily], Msg: "want any, 4 or 6"}
	}

	out := make([]BoundSection, len(m.Sections))
	for i, s := range m.Sections {
		bs := BoundSection{Title: s.Title, Checks: make([]Check, len(s.Checks))}
		for j, tmpl := range s.Checks {
			c := Check{Kind: tmpl.Kind}
			if tmpl.Kind != KindLocalPort {
				c.Family = family
				c.Err = famErr
			}
			if tmpl.Host != "" {
				c.Host = lookup(tmpl.Host)
				if c.Host == "" && c.Err == nil {
					c.Err = &perr.ParamError{Key: tmpl.Host, Msg: "host must not be empty"}
				}
			}
			if tmpl.Port != "" {
				c.PortValue = lookup(tmpl.Port)
				port, err := parsePort(tmpl.Port, c.PortValue)
				c.Port = port
				if err != nil && c.Err == nil {
					c.Err = err
				}
			}
			bs.Checks[j] = c
		}
		out[i] = bs
	}
	return out
}

// DisplayTitle is the title used in the run banner: the "title"
// parameter when set, the mode title otherwise.
func (m *Mode) DisplayTitle(params map[string]string) string {
	if t := strings.TrimSpace(params[ParamTitle]); t != "" {
		return t
	}
	return m.Title
}

func parsePort(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &perr.ParamError{Key: key, Value: value, Msg: "not a number"}
	}
	if n < 1 || n > 65535 {
		return 0, &perr.ParamError{Key: key, Value: value, Msg: "port out of range 1-65535"}
	}
	return n, nil
}
