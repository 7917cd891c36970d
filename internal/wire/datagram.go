// Package wire defines what peers put on the network: discovery datagrams
// over UDP and framed session messages over the TCP connection.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed message")

const (
	prefixLookup     = "LOOKUP"
	prefixConnect    = "CONNECT"
	prefixAck        = "ACK"
	prefixDisconnect = "DISCONNECT"
)

// Datagram is one discovery-channel message. Each UDP packet carries exactly one.
type Datagram interface{ isDatagram() }

// Lookup is the broadcast request asking hosts to announce themselves.
type Lookup struct{}

// LookupReply is a host's answer to Lookup: "<serverPort>,<username>,<totalRounds>".
type LookupReply struct {
	ServerPort  int
	Username    string
	TotalRounds int
}

// ConnectRequest asks the host at TargetAddress to accept Username as its peer.
type ConnectRequest struct {
	TargetAddress string
	Username      string
}

type Ack struct{}

// StopListening tells a host's own announcer to exit.
type StopListening struct{}

func (Lookup) isDatagram()         {}
func (LookupReply) isDatagram()    {}
func (ConnectRequest) isDatagram() {}
func (Ack) isDatagram()            {}
func (StopListening) isDatagram()  {}

func EncodeDatagram(d Datagram) ([]byte, error) {
	switch m := d.(type) {
	case Lookup:
		return []byte(prefixLookup), nil
	case LookupReply:
		if strings.Contains(m.Username, ",") {
			return nil, fmt.Errorf("%w: username %q contains a comma", ErrMalformed, m.Username)
		}
		return []byte(fmt.Sprintf("%d,%s,%d", m.ServerPort, m.Username, m.TotalRounds)), nil
	case ConnectRequest:
		if strings.Contains(m.TargetAddress, ",") || strings.Contains(m.Username, ",") {
			return nil, fmt.Errorf("%w: connect fields must not contain commas", ErrMalformed)
		}
		return []byte(prefixConnect + m.TargetAddress + "," + m.Username), nil
	case Ack:
		return []byte(prefixAck), nil
	case StopListening:
		return []byte(prefixDisconnect), nil
	default:
		return nil, fmt.Errorf("%w: unknown datagram %T", ErrMalformed, d)
	}
}

func ParseDatagram(b []byte) (Datagram, error) {
	switch {
	case bytes.HasPrefix(b, []byte(prefixLookup)):
		return Lookup{}, nil

	case bytes.Equal(b, []byte(prefixDisconnect)):
		return StopListening{}, nil

	case bytes.HasPrefix(b, []byte(prefixConnect)):
		fields := strings.Split(string(b[len(prefixConnect):]), ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: connect request has %d fields", ErrMalformed, len(fields))
		}
		return ConnectRequest{TargetAddress: fields[0], Username: fields[1]}, nil

	case bytes.HasPrefix(b, []byte(prefixAck)):
		return Ack{}, nil
	}

	return parseLookupReply(string(b))
}

func parseLookupReply(s string) (Datagram, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: lookup reply has %d fields", ErrMalformed, len(fields))
	}
	port, err := strconv.Atoi(fields[0])
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: bad server port %q", ErrMalformed, fields[0])
	}
	rounds, err := strconv.Atoi(fields[2])
	if err != nil || rounds < 1 {
		return nil, fmt.Errorf("%w: bad total rounds %q", ErrMalformed, fields[2])
	}
	return LookupReply{ServerPort: port, Username: fields[1], TotalRounds: rounds}, nil
}
