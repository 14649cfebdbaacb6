// Package natclass discovers a node's public endpoint via STUN and derives
// the mesh score and connectivity mode used to reach a peer.
package natclass

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// NATType is a coarse classification of the NAT a node sits behind.
type NATType string

const (
	FullCone           NATType = "full_cone"
	RestrictedCone     NATType = "restricted_cone"
	PortRestrictedCone NATType = "port_restricted_cone"
	Symmetric          NATType = "symmetric"
	Unknown            NATType = "unknown"
)

// ConnectivityMode is how a node should attempt to reach a given peer.
type ConnectivityMode string

const (
	Direct    ConnectivityMode = "direct"
	HolePunch ConnectivityMode = "hole_punch"
	Relay     ConnectivityMode = "relay"
)

// PublicEndpoint is a STUN-discovered public address plus the NAT type
// inferred from a pair of probes.
type PublicEndpoint struct {
	PublicAddr *net.UDPAddr
	NATType    NATType
}

var ErrSTUNTimeout = errors.New("natclass: stun request timed out")
var ErrSTUNFamily = errors.New("natclass: stun response was not ipv4")

const stunMagicCookie = 0x2112A442
const xorMappedAddress = 0x0020

// stunRequest sends an RFC 5389 binding request to stunAddr over sock and
// waits for the XOR-MAPPED-ADDRESS in the response.
func stunRequest(sock *net.UDPConn, stunAddr *net.UDPAddr) (*net.UDPAddr, error) {
	tx := make([]byte, 20)
	tx[0], tx[1] = 0x00, 0x01 // Binding Request
	tx[2], tx[3] = 0x00, 0x00 // Message Length = 0
	binary.BigEndian.PutUint32(tx[4:8], stunMagicCookie)
	if _, err := rand.Read(tx[8:20]); err != nil {
		return nil, err
	}

	if _, err := sock.WriteToUDP(tx, stunAddr); err != nil {
		return nil, err
	}

	buf := make([]byte, 256)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			return nil, ErrSTUNTimeout
		}
		_ = sock.SetReadDeadline(deadline)
		n, _, err := sock.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		if n < 20 {
			continue
		}

		i := 20
		for i+4 <= n {
			attrType := binary.BigEndian.Uint16(buf[i : i+2])
			attrLen := int(binary.BigEndian.Uint16(buf[i+2 : i+4]))
			i += 4
			if i+attrLen > n {
				break
			}

			if attrType == xorMappedAddress && attrLen >= 8 {
				family := buf[i+1]
				if family != 0x01 {
					return nil, ErrSTUNFamily
				}
				xorPort := binary.BigEndian.Uint16(buf[i+2 : i+4])
				port := xorPort ^ 0x2112

				ip := net.IPv4(
					buf[i+4]^0x21,
					buf[i+5]^0x12,
					buf[i+6]^0xA4,
					buf[i+7]^0x42,
				)
				return &net.UDPAddr{IP: ip, Port: int(port)}, nil
			}
			i += attrLen
		}
	}
}

// DiscoverPublicEndpoint binds bindPort, sends two STUN probes 200ms apart,
// and classifies the NAT from how the observed mapping changed between them.
func DiscoverPublicEndpoint(stunServer string, bindPort int) (*PublicEndpoint, error) {
	stunAddr, err := net.ResolveUDPAddr("udp4", stunServer)
	if err != nil {
		return nil, fmt.Errorf("resolve stun server: %w", err)
	}

	sock, err := net.ListenUDP("udp4", &net.UDPAddr{Port: bindPort})
	if err != nil {
		return nil, fmt.Errorf("bind stun probe socket: %w", err)
	}
	defer sock.Close()

	observed1, err := stunRequest(sock, stunAddr)
	if err != nil {
		return nil, err
	}
	time.Sleep(200 * time.Millisecond)
	observed2, err := stunRequest(sock, stunAddr)
	if err != nil {
		return nil, err
	}

	return &PublicEndpoint{
		PublicAddr: observed1,
		NATType:    classifyNAT(observed1, observed2),
	}, nil
}

// classifyNAT infers a NAT type from two STUN observations taken from the
// same local socket. This is a heuristic, not a full RFC 3489 state machine:
// it distinguishes cone-like mappings (stable across probes) from
// port-restricted and symmetric mappings (unstable).
func classifyNAT(o1, o2 *net.UDPAddr) NATType {
	if o1.IP.Equal(o2.IP) && o1.Port == o2.Port {
		return FullCone
	}
	if o1.IP.Equal(o2.IP) && o1.Port != o2.Port {
		return PortRestrictedCone
	}
	if !o1.IP.Equal(o2.IP) || o1.Port != o2.Port {
		return Symmetric
	}
	return Unknown
}

// ComputeScore combines NAT type and controller RTT into the 0..1 mesh
// score used for placement ranking and gateway election.
func ComputeScore(natType NATType, rttMs float64) float64 {
	var natScore float64
	switch natType {
	case FullCone:
		natScore = 1.0
	case RestrictedCone:
		natScore = 0.8
	case PortRestrictedCone:
		natScore = 0.6
	case Symmetric:
		natScore = 0.2
	default:
		natScore = 0.4
	}

	rttFactor := 1.0 - rttMs/5000.0
	if rttFactor < 0 {
		rttFactor = 0
	}
	if rttFactor > 1 {
		rttFactor = 1
	}

	score := natScore*0.7 + rttFactor*0.3
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// SelectConnectivityMode picks how we should try to reach a peer given both
// sides' NAT classifications.
func SelectConnectivityMode(ourNAT, peerNAT NATType) ConnectivityMode {
	if ourNAT == FullCone || peerNAT == FullCone {
		return Direct
	}
	if ourNAT == Symmetric || peerNAT == Symmetric {
		return Relay
	}
	if (ourNAT == RestrictedCone || ourNAT == PortRestrictedCone) &&
		(peerNAT == RestrictedCone || peerNAT == PortRestrictedCone) {
		return HolePunch
	}
	return HolePunch
}
