package model

import (
	"fmt"
	"strings"
)

type PacketDirection uint8

const (
	DirectionIngress PacketDirection = iota + 1
	DirectionEgress
)

func (d PacketDirection) String() string {
	switch d {
	case DirectionIngress:
		return "Ingress"
	case DirectionEgress:
		return "Egress"
	default:
		return "Unknown"
	}
}

func (d PacketDirection) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func ParsePacketDirection(s string) (PacketDirection, error) {
	switch strings.ToLower(s) {
	case "ingress":
		return DirectionIngress, nil
	case "egress":
		return DirectionEgress, nil
	}
	return 0, fmt.Errorf("unknown packet direction %q", s)
}

// ThroughputSample is one observed packet on a network interface.
type ThroughputSample struct {
	Timestamp  int64           `json:"timestamp" yaml:"timestamp"`
	PacketSize uint64          `json:"packet_size" yaml:"packet_size"`
	Direction  PacketDirection `json:"direction" yaml:"direction"`
	Interface  string          `json:"interface" yaml:"interface"`
}

func (s ThroughputSample) Time() int64 { return s.Timestamp }

func (s ThroughputSample) Rebase(offset int64) ThroughputSample {
	s.Timestamp -= offset
	return s
}
