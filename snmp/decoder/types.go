// Package decoder turns loosely typed gosnmp PDU values into an explicit
// tagged union. Callers never inspect gosnmp value types directly; they get a
// Value whose Kind says whether the device returned a string, a number or
// nothing at all.
package decoder

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
	"github.com/spf13/cast"
)

// ─────────────────────────────────────────────────────────────────────────────
// SNMP PDU Type → String
// ─────────────────────────────────────────────────────────────────────────────

// PDUTypeString returns the human-readable name for a gosnmp Asn1BER type tag.
func PDUTypeString(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.BitString:
		return "BitString"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.Null:
		return "Null"
	case gosnmp.ObjectIdentifier:
		return "ObjectIdentifier"
	case gosnmp.ObjectDescription:
		return "ObjectDescription"
	case gosnmp.IPAddress:
		return "IpAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Opaque:
		return "Opaque"
	case gosnmp.Counter64:
		return "Counter64"
	case gosnmp.Uinteger32:
		return "Unsigned32"
	case gosnmp.OpaqueFloat:
		return "OpaqueFloat"
	case gosnmp.OpaqueDouble:
		return "OpaqueDouble"
	case gosnmp.NoSuchObject:
		return "NoSuchObject"
	case gosnmp.NoSuchInstance:
		return "NoSuchInstance"
	case gosnmp.EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// IsAbsentType returns true when the PDU type signals that the agent holds no
// value for the OID.
func IsAbsentType(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance || t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// ─────────────────────────────────────────────────────────────────────────────
// Value — tagged union
// ─────────────────────────────────────────────────────────────────────────────

// Kind discriminates Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindInteger
	KindUnsigned
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindUnsigned:
		return "unsigned"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is a decoded SNMP value. Exactly one of the payload fields is
// meaningful, selected by Kind. Raw keeps the original octets of string
// payloads so callers can re-interpret them (MAC addresses, for example).
type Value struct {
	Kind Kind
	Str  string
	Int  int64
	Uint uint64
	Flt  float64
	Raw  []byte
	Type gosnmp.Asn1BER
}

// Absent is the zero Value.
var Absent = Value{Kind: KindAbsent}

// IsAbsent reports whether the agent returned no value.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// String renders the value as text. Absent renders as "".
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindUnsigned:
		return strconv.FormatUint(v.Uint, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns a numeric view of the value. Strings holding a number (some
// vendors report load averages as "0.42") are parsed.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		return float64(v.Int), true
	case KindUnsigned:
		return float64(v.Uint), true
	case KindFloat:
		if math.IsNaN(v.Flt) || math.IsInf(v.Flt, 0) {
			return 0, false
		}
		return v.Flt, true
	case KindString:
		f, err := cast.ToFloat64E(strings.TrimSpace(v.Str))
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Unsigned returns the value as a uint64. Negative integers and non-numeric
// strings do not convert.
func (v Value) Unsigned() (uint64, bool) {
	switch v.Kind {
	case KindUnsigned:
		return v.Uint, true
	case KindInteger:
		if v.Int < 0 {
			return 0, false
		}
		return uint64(v.Int), true
	case KindFloat:
		if v.Flt < 0 || math.IsNaN(v.Flt) || v.Flt > math.MaxUint64 {
			return 0, false
		}
		return uint64(v.Flt), true
	case KindString:
		u, err := strconv.ParseUint(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, false
		}
		return u, true
	default:
		return 0, false
	}
}

// Integer returns the value as an int.
func (v Value) Integer() (int, bool) {
	f, ok := v.Float()
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// MAC formats octet payloads as a colon-separated hardware address.
func (v Value) MAC() string {
	b := v.Raw
	if len(b) == 0 {
		return ""
	}
	if len(b) == 6 {
		return net.HardwareAddr(b).String()
	}
	return hexColon(b)
}

// ─────────────────────────────────────────────────────────────────────────────
// Decode
// ─────────────────────────────────────────────────────────────────────────────

// Decode converts one PDU into a Value.
//
// Octet payloads follow these rules:
//   - printable ASCII (trailing NULs stripped) → KindString
//   - all-NUL payloads are binary zeros, not empty strings
//   - 1, 2, 4 or 8 bytes of binary → KindUnsigned, big-endian
//   - any other binary length → KindString in aa:bb:cc form
func Decode(pdu gosnmp.SnmpPDU) Value {
	if IsAbsentType(pdu.Type) || pdu.Value == nil {
		return Absent
	}

	switch pdu.Type {
	case gosnmp.Integer:
		i, err := cast.ToInt64E(pdu.Value)
		if err != nil {
			return Absent
		}
		return Value{Kind: KindInteger, Int: i, Type: pdu.Type}

	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Counter64, gosnmp.Uinteger32:
		u, err := toUint64(pdu.Value)
		if err != nil {
			return Absent
		}
		return Value{Kind: KindUnsigned, Uint: u, Type: pdu.Type}

	case gosnmp.OpaqueFloat, gosnmp.OpaqueDouble:
		f, err := cast.ToFloat64E(pdu.Value)
		if err != nil {
			return Absent
		}
		return Value{Kind: KindFloat, Flt: f, Type: pdu.Type}

	case gosnmp.OctetString, gosnmp.Opaque, gosnmp.BitString, gosnmp.ObjectDescription:
		v := DecodeOctets(toBytes(pdu.Value))
		v.Type = pdu.Type
		return v

	case gosnmp.ObjectIdentifier:
		return Value{Kind: KindString, Str: strings.TrimPrefix(cast.ToString(pdu.Value), "."), Type: pdu.Type}

	case gosnmp.IPAddress:
		return Value{Kind: KindString, Str: ipString(pdu.Value), Type: pdu.Type}

	default:
		return Value{Kind: KindString, Str: fmt.Sprintf("%v", pdu.Value), Type: pdu.Type}
	}
}

// DecodeOctets applies the octet payload rules of Decode to b.
func DecodeOctets(b []byte) Value {
	trimmed := strings.TrimRight(string(b), "\x00")
	if isPrintable(trimmed) && (trimmed != "" || len(b) == 0) {
		return Value{Kind: KindString, Str: trimmed, Raw: b}
	}
	switch len(b) {
	case 1:
		return Value{Kind: KindUnsigned, Uint: uint64(b[0]), Raw: b}
	case 2:
		return Value{Kind: KindUnsigned, Uint: uint64(binary.BigEndian.Uint16(b)), Raw: b}
	case 4:
		return Value{Kind: KindUnsigned, Uint: uint64(binary.BigEndian.Uint32(b)), Raw: b}
	case 8:
		return Value{Kind: KindUnsigned, Uint: binary.BigEndian.Uint64(b), Raw: b}
	default:
		return Value{Kind: KindString, Str: hexColon(b), Raw: b}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Low-level conversion helpers
// ─────────────────────────────────────────────────────────────────────────────

// isPrintable accepts printable ASCII plus tab, CR and LF. The empty string is
// printable.
func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func hexColon(b []byte) string {
	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = hex.EncodeToString([]byte{octet})
	}
	return strings.Join(parts, ":")
}

func toBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// toUint64 widens gosnmp's unsigned representations (uint, uint32, uint64)
// without going through float64, which would lose Counter64 precision.
func toUint64(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	default:
		return cast.ToUint64E(v)
	}
}

// ipString converts an IpAddress value (4/16-byte slice or string) to text.
func ipString(v interface{}) string {
	switch x := v.(type) {
	case string:
		if (len(x) == 4 || len(x) == 16) && !isPrintable(x) {
			return net.IP([]byte(x)).String()
		}
		return x
	case []byte:
		if len(x) == 4 || len(x) == 16 {
			return net.IP(x).String()
		}
		return hex.EncodeToString(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
