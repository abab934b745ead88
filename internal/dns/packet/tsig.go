// Package packet provides functionality for parsing and serializing DNS packets.
package packet

import (
	"bufio"
	"crypto/hmac"
	"crypto/md5" // #nosec G501
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
)

// TSIGError carries an RFC 2845 §2.3 extended response code (BADSIG,
// BADKEY, BADTIME) alongside the failure reason, so callers can reflect
// the right ResCode back to the client without string-matching errors.
type TSIGError struct {
	Code uint8
	Msg  string
}

func (e *TSIGError) Error() string { return e.Msg }

func errBadSig(msg string) error  { return &TSIGError{Code: RcodeBadSig, Msg: msg} }
func errBadKey(msg string) error  { return &TSIGError{Code: RcodeBadKey, Msg: msg} }
func errBadTime(msg string) error { return &TSIGError{Code: RcodeBadTime, Msg: msg} }
func errFormErr(msg string) error { return &TSIGError{Code: RcodeFormErr, Msg: msg} }

// TSIGAlgorithm pairs a canonical wire algorithm name with its signing
// function, mirroring ldd/dnssec.py's tsigalgo/algos registry.
type TSIGAlgorithm struct {
	Name          string // short name used in key files, e.g. "hmac-md5"
	CanonicalName string // wire form, e.g. "hmac-md5.sig-alg.reg.int."
	Sign          func(secret, message []byte) []byte
}

func signHMACMD5(secret, message []byte) []byte {
	h := hmac.New(md5.New, secret)
	h.Write(message) // #nosec G104 -- hash.Hash.Write never errors
	return h.Sum(nil)
}

// Algorithms is the registry of supported TSIG algorithms, keyed by
// canonical wire name, so adding a second algorithm never touches the
// sign/verify call sites.
var Algorithms = map[string]TSIGAlgorithm{
	"hmac-md5.sig-alg.reg.int.": {
		Name:          "hmac-md5",
		CanonicalName: "hmac-md5.sig-alg.reg.int.",
		Sign:          signHMACMD5,
	},
}

func algorithmByShortName(name string) (TSIGAlgorithm, bool) {
	for _, a := range Algorithms {
		if a.Name == name {
			return a, true
		}
	}
	return TSIGAlgorithm{}, false
}

// TSIGKey is a named shared secret bound to one algorithm.
type TSIGKey struct {
	Name      string
	Algorithm string // canonical wire name
	Secret    []byte
}

// TSIGKeyTable looks keys up by lowercased name.
type TSIGKeyTable map[string]TSIGKey

// Lookup finds a key by name, case-insensitively. A trailing root dot is
// ignored, matching how LoadKeys stores names.
func (t TSIGKeyTable) Lookup(name string) (TSIGKey, bool) {
	k, ok := t[strings.ToLower(strings.TrimSuffix(name, "."))]
	return k, ok
}

// LoadKeys parses a TSIG key file: whitespace-delimited
// "<name> <algorithm> <base64-secret>" lines. Blank and short lines are
// skipped, matching ldd/dnssec.py's readkeys.
func LoadKeys(r io.Reader) (TSIGKeyTable, error) {
	table := make(TSIGKeyTable)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		algo, ok := algorithmByShortName(fields[1])
		if !ok {
			return nil, fmt.Errorf("tsig key file: unknown algorithm %q", fields[1])
		}
		secret, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("tsig key file: decoding secret for %q: %w", fields[0], err)
		}
		name := strings.ToLower(strings.TrimSuffix(fields[0], "."))
		table[name] = TSIGKey{Name: name, Algorithm: algo.CanonicalName, Secret: secret}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// TSIGContext carries chaining state across a signed exchange: verifying
// a request produces a context; signing the matching response with that
// context prepends the previous MAC to the new MAC input (RFC 2845 §4.4).
type TSIGContext struct {
	Key     TSIGKey
	PrevMAC []byte
	Error   uint16
}

// tsigVariables serializes the TSIG "variables" block covered by the MAC:
// key name, class, TTL, algorithm, signing time, fudge, error and other
// data (RFC 2845 §3.4.1).
func tsigVariables(tsig DNSRecord) ([]byte, error) {
	vBuf := NewBytePacketBuffer()
	if err := vBuf.WriteName(tsig.Name); err != nil {
		return nil, err
	}
	if err := vBuf.Writeu16(ClassANY); err != nil {
		return nil, err
	}
	if err := vBuf.Writeu32(0); err != nil {
		return nil, err
	}
	if err := vBuf.WriteName(tsig.AlgorithmName); err != nil {
		return nil, err
	}
	if err := vBuf.Writeu16(uint16(tsig.TimeSigned >> 32)); err != nil { // #nosec G115
		return nil, err
	}
	if err := vBuf.Writeu32(uint32(tsig.TimeSigned & 0xFFFFFFFF)); err != nil { // #nosec G115
		return nil, err
	}
	if err := vBuf.Writeu16(tsig.Fudge); err != nil {
		return nil, err
	}
	if err := vBuf.Writeu16(tsig.Error); err != nil {
		return nil, err
	}
	if err := vBuf.Writeu16(uint16(len(tsig.Other))); err != nil { // #nosec G115
		return nil, err
	}
	for _, b := range tsig.Other {
		if err := vBuf.Write(b); err != nil {
			return nil, err
		}
	}
	return vBuf.Buf[:vBuf.Position()], nil
}

// macInput assembles the bytes fed to the MAC function: an optional
// chained-context prefix (2-byte length + previous MAC), the packet
// prefix up to (not including) the TSIG record, and the TSIG variables.
func macInput(ctx *TSIGContext, prefix, variables []byte) []byte {
	var out []byte
	if ctx != nil && len(ctx.PrevMAC) > 0 {
		lenPrefix := make([]byte, 2)
		binary.BigEndian.PutUint16(lenPrefix, uint16(len(ctx.PrevMAC))) // #nosec G115
		out = append(out, lenPrefix...)
		out = append(out, ctx.PrevMAC...)
	}
	out = append(out, prefix...)
	out = append(out, variables...)
	return out
}

func nowUnix() uint64 {
	u := time.Now().Unix()
	if u < 0 {
		return 0
	}
	return uint64(u) // #nosec G115
}

// VerifyTSIG checks the TSIG record terminating the additional section
// of a request packet against keys, and returns a TSIGContext for
// chaining into the matching response's signature. rawBuffer is the
// fully decoded wire packet; tsigStart is the byte offset where the TSIG
// record begins (DNSPacket.TSIGStart).
func VerifyTSIG(p *DNSPacket, rawBuffer []byte, tsigStart int, keys TSIGKeyTable) (*TSIGContext, error) {
	if len(p.Resources) == 0 || tsigStart < 0 {
		return nil, errBadSig("no TSIG record present")
	}
	tsig := p.Resources[len(p.Resources)-1]
	if tsig.Type != TSIG || tsig.Class != ClassANY {
		return nil, errFormErr("last additional record is not a well-formed TSIG")
	}

	key, ok := keys.Lookup(tsig.Name)
	if !ok {
		return nil, errBadKey(fmt.Sprintf("unknown TSIG key %q", tsig.Name))
	}
	algo, ok := Algorithms[strings.ToLower(tsig.AlgorithmName)]
	if !ok || algo.CanonicalName != key.Algorithm {
		return nil, errBadKey(fmt.Sprintf("algorithm mismatch for key %q", tsig.Name))
	}

	prefix := make([]byte, tsigStart)
	copy(prefix, rawBuffer[:tsigStart])
	if len(prefix) >= 12 {
		arCount := uint16(len(p.Resources) - 1) // #nosec G115
		prefix[10] = byte(arCount >> 8)
		prefix[11] = byte(arCount & 0xFF)
	}

	variables, err := tsigVariables(tsig)
	if err != nil {
		return nil, err
	}
	expectedMAC := algo.Sign(key.Secret, macInput(nil, prefix, variables))

	ctx := &TSIGContext{Key: key}
	p.TSIGCtx = ctx
	if !hmac.Equal(tsig.MAC, expectedMAC) {
		ctx.Error = uint16(RcodeBadSig) // #nosec G115
		return ctx, errBadSig("TSIG MAC mismatch")
	}

	drift := int64(nowUnix()) - int64(tsig.TimeSigned)
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(tsig.Fudge) {
		ctx.Error = uint16(RcodeBadTime) // #nosec G115
		return ctx, errBadTime("TSIG time drift exceeded fudge")
	}

	ctx.PrevMAC = tsig.MAC
	return ctx, nil
}

// SignTSIG appends a TSIG record to p's additional section, signing the
// wire bytes already written to buffer (the packet up to but not
// including the TSIG record). When ctx is non-nil, ctx.PrevMAC is
// chained into the MAC input (RFC 2845 §4.4) and ctx.Error is reflected
// as the TSIG record's error field, letting a BADSIG/BADKEY/BADTIME
// response still carry a verifiable (if empty-keyed) signature.
func SignTSIG(p *DNSPacket, buffer *BytePacketBuffer, key TSIGKey, ctx *TSIGContext) error {
	algo, ok := Algorithms[strings.ToLower(key.Algorithm)]
	if !ok {
		return fmt.Errorf("signing with key %q: unknown algorithm %q", key.Name, key.Algorithm)
	}

	tsig := DNSRecord{
		Name:          key.Name,
		Type:          TSIG,
		Class:         ClassANY,
		TTL:           0,
		AlgorithmName: algo.CanonicalName,
		TimeSigned:    nowUnix(),
		Fudge:         300,
		OriginalID:    p.Header.ID,
	}
	if ctx != nil {
		tsig.Error = ctx.Error
	}

	variables, err := tsigVariables(tsig)
	if err != nil {
		return err
	}
	prefix := buffer.Buf[:buffer.Position()]
	tsig.MAC = algo.Sign(key.Secret, macInput(ctx, prefix, variables))

	p.Resources = append(p.Resources, tsig)
	p.Header.ResourceEntries = uint16(len(p.Resources)) // #nosec G115

	if len(buffer.Buf) >= 12 {
		buffer.Buf[10] = byte(p.Header.ResourceEntries >> 8)
		buffer.Buf[11] = byte(p.Header.ResourceEntries & 0xFF)
	}

	p.TSIGStart = buffer.Position()
	_, err = tsig.Write(buffer)
	return err
}
