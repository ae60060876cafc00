package decoder

import (
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Varbind — one decoded walk result
// ─────────────────────────────────────────────────────────────────────────────

// Varbind is a decoded PDU positioned relative to the subtree it was walked
// from. Suffix is the instance part after the walked prefix, e.g. "3" for
// ifDescr.3 or "1.4" for a compound index.
type Varbind struct {
	OID    string
	Suffix string
	Value  Value
}

// DecodeWalk decodes the PDUs of a subtree walk rooted at prefix, in order.
// PDUs outside the subtree (trailing bulk results) and absent values are
// dropped.
func DecodeWalk(prefix string, pdus []gosnmp.SnmpPDU) []Varbind {
	root := NormalizeOID(prefix)
	out := make([]Varbind, 0, len(pdus))
	for i := range pdus {
		pdu := &pdus[i]
		if IsAbsentType(pdu.Type) {
			continue
		}
		oid := NormalizeOID(pdu.Name)
		suffix, ok := Suffix(oid, root)
		if !ok {
			continue
		}
		v := Decode(*pdu)
		if v.IsAbsent() {
			continue
		}
		out = append(out, Varbind{OID: oid, Suffix: suffix, Value: v})
	}
	return out
}

// Suffix returns the part of oid after prefix. Both must be normalised. It
// reports false when oid is not strictly inside the prefix subtree.
func Suffix(oid, prefix string) (string, bool) {
	if !strings.HasPrefix(oid, prefix) || len(oid) <= len(prefix)+1 || oid[len(prefix)] != '.' {
		return "", false
	}
	return oid[len(prefix)+1:], true
}

// NormalizeOID strips a leading dot and any whitespace from an OID string.
// OIDs are compared in the no-leading-dot form.
func NormalizeOID(oid string) string {
	oid = strings.TrimSpace(oid)
	return strings.TrimPrefix(oid, ".")
}

// ScalarOID appends the ".0" instance to a scalar object OID when missing.
func ScalarOID(oid string) string {
	oid = NormalizeOID(oid)
	if strings.HasSuffix(oid, ".0") {
		return oid
	}
	return oid + ".0"
}
