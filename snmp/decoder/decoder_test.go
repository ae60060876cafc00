package decoder_test

import (
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
)

// ─────────────────────────────────────────────────────────────────────────────
// Decode
// ─────────────────────────────────────────────────────────────────────────────

func TestDecode_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		pdu      gosnmp.SnmpPDU
		wantKind decoder.Kind
		wantStr  string
	}{
		{"no such object", gosnmp.SnmpPDU{Type: gosnmp.NoSuchObject}, decoder.KindAbsent, ""},
		{"no such instance", gosnmp.SnmpPDU{Type: gosnmp.NoSuchInstance}, decoder.KindAbsent, ""},
		{"end of mib view", gosnmp.SnmpPDU{Type: gosnmp.EndOfMibView}, decoder.KindAbsent, ""},
		{"nil value", gosnmp.SnmpPDU{Type: gosnmp.OctetString}, decoder.KindAbsent, ""},
		{"integer", gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: -7}, decoder.KindInteger, "-7"},
		{"counter32", gosnmp.SnmpPDU{Type: gosnmp.Counter32, Value: uint(4294960000)}, decoder.KindUnsigned, "4294960000"},
		{"counter64", gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(18446744073709551615)}, decoder.KindUnsigned, "18446744073709551615"},
		{"timeticks", gosnmp.SnmpPDU{Type: gosnmp.TimeTicks, Value: uint32(12345)}, decoder.KindUnsigned, "12345"},
		{"printable string", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("Cisco IOS Software\x00")}, decoder.KindString, "Cisco IOS Software"},
		{"oid", gosnmp.SnmpPDU{Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9.1.1"}, decoder.KindString, "1.3.6.1.4.1.9.1.1"},
		{"ip address", gosnmp.SnmpPDU{Type: gosnmp.IPAddress, Value: "192.0.2.1"}, decoder.KindString, "192.0.2.1"},
		{"opaque float", gosnmp.SnmpPDU{Type: gosnmp.OpaqueFloat, Value: float32(0.5)}, decoder.KindFloat, "0.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := decoder.Decode(tc.pdu)
			if got.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.wantKind)
			}
			if got.String() != tc.wantStr {
				t.Errorf("string = %q, want %q", got.String(), tc.wantStr)
			}
		})
	}
}

func TestDecodeOctets_BinaryWidths(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		wantKind decoder.Kind
		wantUint uint64
		wantStr  string
	}{
		{"1 byte", []byte{0x05}, decoder.KindUnsigned, 5, ""},
		{"2 bytes", []byte{0x01, 0x00}, decoder.KindUnsigned, 256, ""},
		{"4 bytes", []byte{0x00, 0x01, 0x00, 0x00}, decoder.KindUnsigned, 65536, ""},
		{"8 bytes", []byte{0, 0, 0, 1, 0, 0, 0, 0}, decoder.KindUnsigned, 1 << 32, ""},
		{"6 bytes is hex", []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}, decoder.KindString, 0, "00:1a:2b:3c:4d:5e"},
		{"3 bytes is hex", []byte{0xff, 0x00, 0x01}, decoder.KindString, 0, "ff:00:01"},
		{"empty is empty string", []byte{}, decoder.KindString, 0, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := decoder.DecodeOctets(tc.in)
			if got.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.wantKind)
			}
			if tc.wantKind == decoder.KindUnsigned && got.Uint != tc.wantUint {
				t.Errorf("uint = %d, want %d", got.Uint, tc.wantUint)
			}
			if tc.wantKind == decoder.KindString && got.Str != tc.wantStr {
				t.Errorf("str = %q, want %q", got.Str, tc.wantStr)
			}
		})
	}
}

func TestValue_NumericViews(t *testing.T) {
	load := decoder.Value{Kind: decoder.KindString, Str: " 0.42 "}
	if f, ok := load.Float(); !ok || f != 0.42 {
		t.Errorf("Float() = %v, %v; want 0.42, true", f, ok)
	}

	word := decoder.Value{Kind: decoder.KindString, Str: "n/a"}
	if _, ok := word.Float(); ok {
		t.Error("non-numeric string should not convert")
	}

	neg := decoder.Value{Kind: decoder.KindInteger, Int: -1}
	if _, ok := neg.Unsigned(); ok {
		t.Error("negative integer should not convert to unsigned")
	}

	if _, ok := decoder.Absent.Float(); ok {
		t.Error("absent value should not convert")
	}
}

func TestValue_MAC(t *testing.T) {
	v := decoder.Decode(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}})
	if got := v.MAC(); got != "00:1a:2b:3c:4d:5e" {
		t.Errorf("MAC() = %q", got)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// DecodeWalk
// ─────────────────────────────────────────────────────────────────────────────

func TestDecodeWalk_SuffixesAndFiltering(t *testing.T) {
	pdus := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.2.1", Type: gosnmp.OctetString, Value: []byte("Gi0/1")},
		{Name: ".1.3.6.1.2.1.2.2.1.2.2", Type: gosnmp.OctetString, Value: []byte("Gi0/2")},
		{Name: ".1.3.6.1.2.1.2.2.1.2.3", Type: gosnmp.NoSuchInstance},
		// Bulk walks overshoot into the next column.
		{Name: ".1.3.6.1.2.1.2.2.1.3.1", Type: gosnmp.Integer, Value: 6},
	}

	got := decoder.DecodeWalk(".1.3.6.1.2.1.2.2.1.2", pdus)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Suffix != "1" || got[0].Value.Str != "Gi0/1" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Suffix != "2" || got[1].Value.Str != "Gi0/2" {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestSuffix(t *testing.T) {
	tests := []struct {
		oid, prefix string
		want        string
		ok          bool
	}{
		{"1.3.6.1.2.1.2.2.1.10.5", "1.3.6.1.2.1.2.2.1.10", "5", true},
		{"1.3.6.1.2.1.2.2.1.100.5", "1.3.6.1.2.1.2.2.1.10", "", false},
		{"1.3.6.1.2.1.2.2.1.10", "1.3.6.1.2.1.2.2.1.10", "", false},
		{"1.3.6.1.4.1.2021.4.5.0", "1.3.6.1.4.1.2021.4", "5.0", true},
	}
	for _, tc := range tests {
		got, ok := decoder.Suffix(tc.oid, tc.prefix)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Suffix(%q, %q) = %q, %v; want %q, %v", tc.oid, tc.prefix, got, ok, tc.want, tc.ok)
		}
	}
}

func TestScalarOID(t *testing.T) {
	if got := decoder.ScalarOID(".1.3.6.1.2.1.1.1"); got != "1.3.6.1.2.1.1.1.0" {
		t.Errorf("ScalarOID = %q", got)
	}
	if got := decoder.ScalarOID("1.3.6.1.2.1.1.1.0"); got != "1.3.6.1.2.1.1.1.0" {
		t.Errorf("ScalarOID kept suffix = %q", got)
	}
}

func TestDecodeOctets_AllZeroIsNumeric(t *testing.T) {
	got := decoder.DecodeOctets([]byte{0, 0, 0, 0})
	if got.Kind != decoder.KindUnsigned || got.Uint != 0 {
		t.Errorf("got %+v, want unsigned 0", got)
	}
}
