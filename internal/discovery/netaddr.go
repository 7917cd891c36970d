package discovery

import (
	"fmt"
	"net"
)

// LocalAddress reports the IPv4 address of the interface that routes to the
// outside world. No packet is sent.
func LocalAddress() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("local address: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// BroadcastAddress assumes a /24 network and replaces the last octet with 255.
func BroadcastAddress(local string) (string, error) {
	ip := net.ParseIP(local).To4()
	if ip == nil {
		return "", fmt.Errorf("broadcast address: %q is not an IPv4 address", local)
	}
	b := make(net.IP, len(ip))
	copy(b, ip)
	b[3] = 255
	return b.String(), nil
}
