package model

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"
)

// ValueType tags a field value with the rendering rule that applies to it.
type ValueType int

const (
	TypeOther ValueType = iota
	TypeIPAddr
	TypeTCPPort
	TypeUDPPort
	TypeString
	TypeUint32
	TypeInt32
	TypeUshort
	TypeTime
)

var typeNames = [...]string{
	TypeOther:   "other",
	TypeIPAddr:  "ip",
	TypeTCPPort: "tcp_port",
	TypeUDPPort: "udp_port",
	TypeString:  "string",
	TypeUint32:  "uint",
	TypeInt32:   "int",
	TypeUshort:  "ushort",
	TypeTime:    "time",
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseValueType maps a short type name ("ip", "tcp_port", ...) to a ValueType.
// Unknown names map to TypeOther with ok=false.
func ParseValueType(s string) (ValueType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == s {
			return ValueType(i), true
		}
	}
	return TypeOther, false
}

// Value holds a field's raw value. Which member is meaningful depends on the
// field's ValueType: U32 for addresses, integers and times, U16 for ports and
// shorts, Str for strings and TypeOther values.
type Value struct {
	U32 uint32
	U16 uint16
	Str string
}

// Field is one decoded attribute of a record. Values of type TypeIPAddr and
// the port types are kept in stored form: network-order bytes loaded as a
// host-order integer.
type Field struct {
	AttrID int
	Type   ValueType
	Value  Value
}

// StoredIPv4 returns the stored form of an IPv4 address: its four octets in
// network order, read as a host-order uint32.
func StoredIPv4(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.NativeEndian.Uint32(b[:])
}

// StoredPort returns the stored form of a host-order port number.
func StoredPort(port uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], port)
	return binary.NativeEndian.Uint16(b[:])
}

// AddrFromStored is the inverse of StoredIPv4.
func AddrFromStored(v uint32) netip.Addr {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// PortFromStored is the inverse of StoredPort.
func PortFromStored(v uint16) uint16 {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], v)
	return binary.BigEndian.Uint16(b[:])
}
