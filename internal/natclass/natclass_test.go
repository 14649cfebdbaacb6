package natclass

import (
	"net"
	"testing"
)

func mustAddr(s string) *net.UDPAddr {
	a, err := net.ResolveUDPAddr("udp4", s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestComputeScore(t *testing.T) {
	cases := []struct {
		name    string
		natType NATType
		rttMs   float64
		want    float64
	}{
		{"full_cone_zero_rtt", FullCone, 0, 0.7*1.0 + 0.3*1.0},
		{"symmetric_zero_rtt", Symmetric, 0, 0.7*0.2 + 0.3*1.0},
		{"unknown_max_rtt", Unknown, 5000, 0.7 * 0.4},
		{"full_cone_over_max_rtt_clamped", FullCone, 10000, 0.7 * 1.0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ComputeScore(c.natType, c.rttMs)
			if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ComputeScore(%v, %v) = %v, want %v", c.natType, c.rttMs, got, c.want)
			}
		})
	}
}

func TestSelectConnectivityMode(t *testing.T) {
	cases := []struct {
		our, peer NATType
		want      ConnectivityMode
	}{
		{FullCone, Symmetric, Direct},
		{Symmetric, FullCone, Direct},
		{Symmetric, Symmetric, Relay},
		{RestrictedCone, PortRestrictedCone, HolePunch},
		{PortRestrictedCone, PortRestrictedCone, HolePunch},
		{Unknown, Unknown, HolePunch},
	}

	for _, c := range cases {
		got := SelectConnectivityMode(c.our, c.peer)
		if got != c.want {
			t.Errorf("SelectConnectivityMode(%v, %v) = %v, want %v", c.our, c.peer, got, c.want)
		}
	}
}

func TestClassifyNAT(t *testing.T) {
	// exercised indirectly: same addr both probes -> full cone.
	a := mustAddr("1.2.3.4:1000")
	b := mustAddr("1.2.3.4:1000")
	if got := classifyNAT(a, b); got != FullCone {
		t.Errorf("expected FullCone for identical probes, got %v", got)
	}

	c := mustAddr("1.2.3.4:2000")
	if got := classifyNAT(a, c); got != PortRestrictedCone {
		t.Errorf("expected PortRestrictedCone for same ip/diff port, got %v", got)
	}

	d := mustAddr("5.6.7.8:2000")
	if got := classifyNAT(a, d); got != Symmetric {
		t.Errorf("expected Symmetric for differing ip, got %v", got)
	}
}
