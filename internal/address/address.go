package address

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const DefaultHost = "0.0.0.0"

var (
	ErrNoPort  = errors.New("no port given")
	ErrBadPort = errors.New("invalid port")
)

// Parse resolves an address in host:port form. Empty host stands for all the interfaces,
// localhost is resolved to the IPv4 loopback.
func Parse(addr string) (netip.AddrPort, error) {
	colon := strings.LastIndexByte(addr, ':')
	if colon == -1 {
		return netip.AddrPort{}, ErrNoPort
	}

	host, portStr := addr[:colon], addr[colon+1:]
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrBadPort, portStr)
	}

	if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}

	switch {
	case len(host) == 0:
		host = DefaultHost
	case IsLocalhost(host):
		host = "127.0.0.1"
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, err
	}

	return netip.AddrPortFrom(ip, uint16(port)), nil
}

func IsLocalhost(host string) bool {
	return strings.EqualFold(host, "localhost")
}
