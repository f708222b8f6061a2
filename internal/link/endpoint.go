package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
)

// DefaultBaudRate is used for serial endpoints given without a baud rate
const DefaultBaudRate = 57600

var networkSchemes = map[string]struct{}{
	"tcp":      {},
	"tcpin":    {},
	"udp":      {},
	"udpin":    {},
	"udpout":   {},
	"udpbcast": {},
}

// ParseEndpoint converts a connection string into a gomavlib endpoint.
// Supported forms:
//
//	tcp:host:port         TCP client
//	tcpin:host:port       TCP server
//	udp:host:port         UDP server (listen), also udpin:
//	udpout:host:port      UDP client
//	udpbcast:host:port    UDP broadcast
//	serial:device[:baud]  serial port, baud defaults to 57600
//	/dev/ttyX[:baud]      serial port shorthand
func ParseEndpoint(s string) (gomavlib.EndpointConf, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("link.ParseEndpoint: empty endpoint")
	}

	if strings.HasPrefix(s, "/dev/") {
		return parseSerial(s)
	}

	scheme, address, ok := strings.Cut(s, ":")
	if !ok || address == "" {
		return nil, fmt.Errorf("link.ParseEndpoint: missing address in '%s'", s)
	}

	scheme = strings.ToLower(scheme)
	if scheme == "serial" {
		return parseSerial(address)
	}

	if _, ok := networkSchemes[scheme]; !ok {
		return nil, fmt.Errorf("link.ParseEndpoint: unknown scheme '%s'", scheme)
	}
	if err := validateHostPort(address); err != nil {
		return nil, err
	}

	switch scheme {
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: address}, nil
	case "tcpin":
		return gomavlib.EndpointTCPServer{Address: address}, nil
	case "udp", "udpin":
		return gomavlib.EndpointUDPServer{Address: address}, nil
	case "udpout":
		return gomavlib.EndpointUDPClient{Address: address}, nil
	default: // udpbcast
		return gomavlib.EndpointUDPBroadcast{BroadcastAddress: address}, nil
	}
}

func parseSerial(s string) (gomavlib.EndpointConf, error) {
	device, baud := s, DefaultBaudRate

	if i := strings.LastIndex(s, ":"); i > 0 {
		b, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return nil, fmt.Errorf("link.ParseEndpoint: invalid baud rate '%s': %w", s[i+1:], err)
		}
		if b <= 0 {
			return nil, fmt.Errorf("link.ParseEndpoint: baud rate must be positive: %d", b)
		}
		device, baud = s[:i], b
	}

	return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
}

func validateHostPort(address string) error {
	i := strings.LastIndex(address, ":")
	if i < 0 {
		return fmt.Errorf("link.ParseEndpoint: missing port in '%s'", address)
	}

	port, err := strconv.Atoi(address[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("link.ParseEndpoint: invalid port in '%s'", address)
	}
	return nil
}
