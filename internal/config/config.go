package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

const DefaultPath = "/tmp/garp_conf.json"

// Descriptor announces one local interface. Addresses are kept as written in
// the file; Load has already checked that they parse.
type Descriptor struct {
	Index      string
	TargetIP   string
	TargetIPv6 string
	DUTMAC     string
	DstIPv6    string
}

// Interface returns the local interface name the descriptor is bound to.
func (d Descriptor) Interface() string {
	return "eth" + d.Index
}

type Config struct {
	Path        string
	Descriptors []Descriptor
}

// Error reports every problem found while loading a configuration file.
type Error struct {
	Path     string
	Problems []string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "config %s", e.Path)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Problems) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Problems, "; "))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type field struct {
	key   string
	check func(string) error
}

var fields = []field{
	{"target_ip", checkIPv4},
	{"target_ipv6", checkIPv6},
	{"dut_mac", checkMAC},
	{"dst_ipv6", checkBareIPv6},
}

// Load reads the interface announcement mapping at path. Entries are returned
// in file order. Any invalid entry fails the whole load.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse validates data as an announcement mapping. path is only used in
// error messages.
func Parse(path string, data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, &Error{Path: path, Problems: []string{"not valid JSON"}}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &Error{Path: path, Problems: []string{"top level must be an object"}}
	}

	cfg := &Config{Path: path}
	var problems []string
	seen := make(map[string]bool)

	root.ForEach(func(key, value gjson.Result) bool {
		index := key.String()
		switch {
		case strings.TrimSpace(index) == "":
			problems = append(problems, "empty interface index")
			return true
		case seen[index]:
			problems = append(problems, fmt.Sprintf("%s: duplicate interface index", index))
			return true
		}
		seen[index] = true

		if !value.IsObject() {
			problems = append(problems, fmt.Sprintf("%s: entry must be an object", index))
			return true
		}

		d, errs := parseDescriptor(index, value)
		problems = append(problems, errs...)
		if len(errs) == 0 {
			cfg.Descriptors = append(cfg.Descriptors, d)
		}
		return true
	})

	if len(problems) > 0 {
		return nil, &Error{Path: path, Problems: problems}
	}
	return cfg, nil
}

func parseDescriptor(index string, entry gjson.Result) (Descriptor, []string) {
	values := make(map[string]string, len(fields))
	var problems []string

	for _, f := range fields {
		v := entry.Get(f.key)
		switch {
		case !v.Exists():
			problems = append(problems, fmt.Sprintf("%s: missing %s", index, f.key))
			continue
		case v.Type != gjson.String:
			problems = append(problems, fmt.Sprintf("%s: %s must be a string", index, f.key))
			continue
		}
		if err := f.check(v.Str); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s: %v", index, f.key, err))
			continue
		}
		values[f.key] = v.Str
	}

	return Descriptor{
		Index:      index,
		TargetIP:   values["target_ip"],
		TargetIPv6: values["target_ipv6"],
		DUTMAC:     values["dut_mac"],
		DstIPv6:    values["dst_ipv6"],
	}, problems
}

// ParseAddr accepts either a bare address or an address with a prefix length
// and returns the address alone.
func ParseAddr(s string) (netip.Addr, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Addr{}, err
		}
		return p.Addr(), nil
	}
	return netip.ParseAddr(s)
}

func checkIPv4(s string) error {
	a, err := ParseAddr(s)
	if err != nil {
		return err
	}
	if !a.Is4() {
		return fmt.Errorf("%q is not an IPv4 address", s)
	}
	return nil
}

func checkIPv6(s string) error {
	a, err := ParseAddr(s)
	if err != nil {
		return err
	}
	if !a.Is6() || a.Is4In6() {
		return fmt.Errorf("%q is not an IPv6 address", s)
	}
	return nil
}

func checkBareIPv6(s string) error {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return err
	}
	if !a.Is6() || a.Is4In6() {
		return fmt.Errorf("%q is not an IPv6 address", s)
	}
	return nil
}

func checkMAC(s string) error {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return err
	}
	if len(mac) != 6 {
		return fmt.Errorf("%q is not a 6-byte MAC address", s)
	}
	return nil
}
