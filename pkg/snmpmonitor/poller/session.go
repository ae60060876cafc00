// Package poller is the protocol session adapter of the monitor. It turns a
// device Target into a live gosnmp session and exposes Get, GetMultiple and
// Walk. Protocol "absent" sentinels come back as decoder.Absent values rather
// than errors, and the first transport-level failure marks the session lost
// so that every later call in the same collection pass fails fast.
//
// Sessions are opened per collection call and never pooled across polls.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Target — everything needed to open one session
// ─────────────────────────────────────────────────────────────────────────────

// Protocol versions accepted in Target.Version.
const (
	Version1  = "1"
	Version2c = "2c"
	Version3  = "3"
)

// Default session parameters.
const (
	DefaultPort    = 161
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
	DefaultMaxOids = 60
)

// Target describes one SNMP agent and the credentials used to reach it.
// Credential fields hold plaintext; callers decrypt immediately before
// dialing and drop the Target once the session is closed.
type Target struct {
	Address string
	Port    uint16
	Version string

	// Community is used for v1 and v2c.
	Community string

	// SNMPv3 user security model parameters.
	Username     string
	AuthProtocol string // noauth, md5, sha, sha224, sha256, sha384, sha512
	AuthKey      string
	PrivProtocol string // nopriv, des, aes, aes192, aes256, aes192c, aes256c
	PrivKey      string

	Timeout time.Duration
	Retries int
	MaxOids int
}

// withDefaults fills zero-valued fields.
func (t Target) withDefaults() Target {
	if t.Port == 0 {
		t.Port = DefaultPort
	}
	if t.Version == "" {
		t.Version = Version2c
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}
	if t.Retries < 0 {
		t.Retries = 0
	}
	if t.MaxOids <= 0 {
		t.MaxOids = DefaultMaxOids
	}
	return t
}

// Validate reports configuration errors that make dialing pointless.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Address) == "" {
		return errors.New("poller: target address is empty")
	}
	switch t.Version {
	case Version1, Version2c, "":
	case Version3:
		if t.Username == "" {
			return errors.New("poller: snmpv3 target requires a username")
		}
	default:
		return fmt.Errorf("poller: unsupported SNMP version %q", t.Version)
	}
	return nil
}

// String renders the target as address:port for logs. Credentials are never
// included.
func (t Target) String() string {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", t.Address, port)
}

// ─────────────────────────────────────────────────────────────────────────────
// Session factory — Target → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

// Dialer opens sessions. The collector depends on this type so tests can
// substitute scripted sessions.
type Dialer func(ctx context.Context, t Target) (Session, error)

// Dial builds and connects a fresh gosnmp session for t. The caller must
// Close the returned session.
func Dial(ctx context.Context, t Target) (Session, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	g, err := newGoSNMP(ctx, t.withDefaults())
	if err != nil {
		return nil, err
	}
	if err := g.Connect(); err != nil {
		return nil, &TransportError{Op: "connect", Target: t.String(), Err: err}
	}
	return NewClientSession(g, t.Version, int(g.MaxOids), func() error {
		if g.Conn == nil {
			return nil
		}
		return g.Conn.Close()
	}), nil
}

// newGoSNMP maps a Target onto gosnmp's session struct without connecting.
func newGoSNMP(ctx context.Context, t Target) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Context: ctx,
		Target:  t.Address,
		Port:    t.Port,
		Timeout: t.Timeout,
		Retries: t.Retries,
		MaxOids: t.MaxOids,
	}

	switch t.Version {
	case Version1:
		g.Version = gosnmp.Version1
		g.Community = t.Community
	case Version2c:
		g.Version = gosnmp.Version2c
		g.Community = t.Community
	case Version3:
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = snmpv3MsgFlags(t)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 t.Username,
			AuthenticationProtocol:   mapAuthProto(t.AuthProtocol),
			AuthenticationPassphrase: t.AuthKey,
			PrivacyProtocol:          mapPrivProto(t.PrivProtocol),
			PrivacyPassphrase:        t.PrivKey,
		}
	default:
		return nil, fmt.Errorf("poller: unsupported SNMP version %q", t.Version)
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 helpers
// ─────────────────────────────────────────────────────────────────────────────

// SecurityLevel returns the v3 message flags implied by t's protocols.
func SecurityLevel(t Target) gosnmp.SnmpV3MsgFlags { return snmpv3MsgFlags(t) }

func snmpv3MsgFlags(t Target) gosnmp.SnmpV3MsgFlags {
	hasAuth := mapAuthProto(t.AuthProtocol) != gosnmp.NoAuth
	hasPriv := mapPrivProto(t.PrivProtocol) != gosnmp.NoPriv

	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "md5":
		return gosnmp.MD5
	case "sha", "sha1":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "des":
		return gosnmp.DES
	case "aes", "aes128":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}
