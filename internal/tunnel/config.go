package tunnel

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

// RouterConfig is the on-disk shape of a router's interface and route
// table, loaded from a YAML file passed to `minnow router --config`.
type RouterConfig struct {
	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Routes     []RouteConfig     `yaml:"routes"`
}

// InterfaceConfig describes one of the router's NetworkInterfaces.
type InterfaceConfig struct {
	Name string `yaml:"name"`
	MAC  string `yaml:"mac"`
	IP   string `yaml:"ip"`
	TUN  string `yaml:"tun,omitempty"`
}

// RouteConfig describes one forwarding-table entry.
type RouteConfig struct {
	Prefix    string `yaml:"prefix"`
	PrefixLen uint8  `yaml:"prefix_len"`
	NextHop   string `yaml:"next_hop,omitempty"`
	Interface string `yaml:"interface"`
}

// LoadRouterConfig reads and validates a router configuration file.
func LoadRouterConfig(path string) (*RouterConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tunnel: read config: %w", err)
	}
	var cfg RouterConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("tunnel: parse config: %w", err)
	}
	if len(cfg.Interfaces) == 0 {
		return nil, fmt.Errorf("tunnel: config defines no interfaces")
	}
	return &cfg, nil
}

// ParseMAC parses a colon-separated hardware address into a header.Address.
func ParseMAC(s string) (header.Address, error) {
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return header.Address{}, fmt.Errorf("tunnel: invalid MAC %q", s)
	}
	var addr header.Address
	copy(addr[:], hw)
	return addr, nil
}

// ParseIPv4 parses a dotted-quad string into a 4-byte address.
func ParseIPv4(s string) ([4]byte, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return [4]byte{}, fmt.Errorf("tunnel: invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return [4]byte{}, fmt.Errorf("tunnel: %q is not an IPv4 address", s)
	}
	var out [4]byte
	copy(out[:], v4)
	return out, nil
}
