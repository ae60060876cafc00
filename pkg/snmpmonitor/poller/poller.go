package poller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

// ErrSessionLost is returned by every call on a session that already saw a
// transport failure.
var ErrSessionLost = errors.New("poller: session lost")

// TransportError wraps a session-level failure: unreachable agent, timeout
// after all retries, or a broken socket.
type TransportError struct {
	Op     string
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("poller: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("poller: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err means the device could not be
// talked to at all, as opposed to a metric being unsupported.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) || errors.Is(err, ErrSessionLost) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// looksLikeTransport classifies raw gosnmp errors, which are mostly plain
// fmt errors. Agent-level failures arrive as packet error statuses instead.
func looksLikeTransport(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "refused", "unreachable", "connection", "closed network", "no route"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// WalkEntry is one (suffix, value) pair returned by Walk, in agent order.
type WalkEntry = decoder.Varbind

// Session is one live connection to an agent. Implementations serialise
// calls; a session may be shared by goroutines of the same collection pass.
type Session interface {
	// Get fetches one OID. An absent object yields decoder.Absent and a
	// nil error.
	Get(ctx context.Context, oid string) (decoder.Value, error)

	// GetMultiple fetches several OIDs, chunked by the session's MaxOids.
	// Absent objects are present in the map as decoder.Absent.
	GetMultiple(ctx context.Context, oids []string) (map[string]decoder.Value, error)

	// Walk returns the subtree rooted at prefix.
	Walk(ctx context.Context, prefix string) ([]WalkEntry, error)

	Close() error
}

// Client is the subset of *gosnmp.GoSNMP used by sessions.
type Client interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	WalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
}

// clientSession adapts a Client to Session.
type clientSession struct {
	client  Client
	version string
	maxOids int
	closer  func() error

	mu     sync.Mutex
	lost   bool
	closed bool
}

// NewClientSession wraps an already connected client. closer may be nil.
func NewClientSession(c Client, version string, maxOids int, closer func() error) Session {
	if maxOids <= 0 {
		maxOids = DefaultMaxOids
	}
	return &clientSession{client: c, version: version, maxOids: maxOids, closer: closer}
}

func (s *clientSession) Get(ctx context.Context, oid string) (decoder.Value, error) {
	vals, err := s.GetMultiple(ctx, []string{oid})
	if err != nil {
		return decoder.Absent, err
	}
	return vals[decoder.NormalizeOID(oid)], nil
}

func (s *clientSession) GetMultiple(ctx context.Context, oids []string) (map[string]decoder.Value, error) {
	out := make(map[string]decoder.Value, len(oids))
	norm := make([]string, 0, len(oids))
	for _, oid := range oids {
		n := decoder.NormalizeOID(oid)
		out[n] = decoder.Absent
		norm = append(norm, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < len(norm); i += s.maxOids {
		end := i + s.maxOids
		if end > len(norm) {
			end = len(norm)
		}
		if err := s.getChunk(ctx, norm[i:end], out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// getChunk must be called with s.mu held.
func (s *clientSession) getChunk(ctx context.Context, oids []string, out map[string]decoder.Value) error {
	if err := s.usable(ctx); err != nil {
		return err
	}
	pkt, err := s.client.Get(oids)
	if err != nil {
		return s.fail("get", err)
	}
	if pkt == nil {
		return nil
	}

	if pkt.Error != gosnmp.NoError {
		// SNMPv1 agents reject the whole request when one object is
		// missing; retry one OID at a time so the rest still resolve.
		if pkt.Error == gosnmp.NoSuchName && len(oids) > 1 {
			for _, oid := range oids {
				if err := s.getChunk(ctx, []string{oid}, out); err != nil {
					return err
				}
			}
			return nil
		}
		if pkt.Error == gosnmp.NoSuchName {
			return nil
		}
		return fmt.Errorf("poller: get: agent error %v at index %d", pkt.Error, pkt.ErrorIndex)
	}

	for _, pdu := range pkt.Variables {
		out[decoder.NormalizeOID(pdu.Name)] = decoder.Decode(pdu)
	}
	return nil
}

func (s *clientSession) Walk(ctx context.Context, prefix string) ([]WalkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	root := decoder.NormalizeOID(prefix)

	var (
		pdus []gosnmp.SnmpPDU
		err  error
	)
	if s.version == Version1 {
		pdus, err = s.client.WalkAll(root)
	} else {
		pdus, err = s.client.BulkWalkAll(root)
	}
	if err != nil {
		return decoder.DecodeWalk(root, pdus), s.fail("walk "+root, err)
	}
	return decoder.DecodeWalk(root, pdus), nil
}

func (s *clientSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// usable must be called with s.mu held.
func (s *clientSession) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return errors.New("poller: session closed")
	}
	if s.lost {
		return ErrSessionLost
	}
	return nil
}

// fail must be called with s.mu held.
func (s *clientSession) fail(op string, err error) error {
	if looksLikeTransport(err) {
		s.lost = true
		return &TransportError{Op: op, Err: err}
	}
	return fmt.Errorf("poller: %s: %w", op, err)
}
