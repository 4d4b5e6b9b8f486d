// Package ticket implements the mod_auth_tkt cookie signing scheme so
// identities minted here can be consumed by existing reverse proxies
// and legacy applications that speak that format.
package ticket

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PlaceholderIP is folded into the digest when client IP binding is
// disabled. Both signer and verifier must use the same value.
const PlaceholderIP = "0.0.0.0"

const (
	digestHexLen    = md5.Size * 2
	timestampHexLen = 8
	headerLen       = digestHexLen + timestampHexLen
)

// ErrBadTicket covers every parse and verification failure. Callers
// must treat any bad ticket as "no identity" and never surface the
// reason to the client.
var ErrBadTicket = errors.New("ticket: malformed or forged ticket")

// Ticket is a decoded legacy identity cookie.
type Ticket struct {
	UserID   string
	Tokens   []string
	UserData string
	IssuedAt time.Time
}

// Sign produces the signed wire value for a ticket:
//
//	digest(32 hex) || timestamp(8 hex) || urlescape(userid) || "!" || tokens || "!" || userdata
//
// The tokens segment and its trailing separator are omitted when no
// tokens are present, matching mod_auth_tkt output.
func Sign(secret, userid, clientIP string, tokens []string, userData string, issueTime time.Time) string {
	ts := issueTime.Unix()
	joined := strings.Join(tokens, ",")
	digest := calculateDigest(secret, clientIP, ts, userid, joined, userData)

	var b strings.Builder
	fmt.Fprintf(&b, "%s%08x%s!", digest, uint32(ts), url.QueryEscape(userid))
	if joined != "" {
		b.WriteString(joined)
		b.WriteString("!")
	}
	b.WriteString(userData)
	return b.String()
}

// Parse validates a signed wire value and returns the embedded
// identity. The digest is recomputed from the supplied secret and
// client IP and compared in constant time.
func Parse(secret, value, clientIP string) (Ticket, error) {
	value = strings.Trim(value, `"`)
	if len(value) < headerLen+1 {
		return Ticket{}, fmt.Errorf("%w: too short", ErrBadTicket)
	}

	digest := value[:digestHexLen]
	ts, err := strconv.ParseInt(value[digestHexLen:headerLen], 16, 64)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: timestamp is not hex", ErrBadTicket)
	}

	rest := value[headerLen:]
	escapedID, data, ok := strings.Cut(rest, "!")
	if !ok {
		return Ticket{}, fmt.Errorf("%w: userid is not terminated", ErrBadTicket)
	}
	userid, err := url.QueryUnescape(escapedID)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: userid escaping is invalid", ErrBadTicket)
	}

	var joined, userData string
	if before, after, ok := strings.Cut(data, "!"); ok {
		joined, userData = before, after
	} else {
		userData = data
	}

	expected := calculateDigest(secret, clientIP, ts, userid, joined, userData)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) != 1 {
		return Ticket{}, fmt.Errorf("%w: digest mismatch", ErrBadTicket)
	}

	var tokens []string
	if joined != "" {
		tokens = strings.Split(joined, ",")
	}

	return Ticket{
		UserID:   userid,
		Tokens:   tokens,
		UserData: userData,
		IssuedAt: time.Unix(ts, 0),
	}, nil
}

// calculateDigest computes the double-MD5 mod_auth_tkt digest. The
// inner digest is hex-encoded before the secret is appended for the
// outer round; that quirk is part of the wire protocol.
func calculateDigest(secret, ip string, ts int64, userid, joinedTokens, userData string) string {
	inner := md5.New()
	inner.Write(encodeIPTimestamp(ip, ts))
	inner.Write([]byte(secret))
	inner.Write([]byte(userid))
	inner.Write([]byte{0})
	inner.Write([]byte(joinedTokens))
	inner.Write([]byte{0})
	inner.Write([]byte(userData))
	innerHex := hex.EncodeToString(inner.Sum(nil))

	outer := md5.Sum([]byte(innerHex + secret))
	return hex.EncodeToString(outer[:])
}

// encodeIPTimestamp packs the IPv4 address and unix time into the
// 8-byte prefix mod_auth_tkt feeds into the digest. Addresses that
// are not IPv4 fall back to the placeholder so IPv6 clients still get
// a stable (unbound) digest.
func encodeIPTimestamp(ip string, ts int64) []byte {
	buf := make([]byte, 0, 8)

	v4 := net.ParseIP(ip).To4()
	if v4 == nil {
		v4 = net.ParseIP(PlaceholderIP).To4()
	}
	buf = append(buf, v4...)

	t := uint32(ts)
	buf = append(buf, byte(t>>24), byte(t>>16), byte(t>>8), byte(t))
	return buf
}
