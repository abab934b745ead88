// Package packet provides functionality for parsing and serializing DNS
// messages: header, question, resource record and full packet types, with
// pointer-based name compression.
package packet

import (
	"fmt"
	"net"
)

// QueryType represents the DNS record type field (e.g., A, NS, MX).
type QueryType uint16

const (
	// UNKNOWN represents an unrecognized DNS query type.
	UNKNOWN QueryType = 0
	// A represents an IPv4 address record.
	A QueryType = 1
	// NS represents an authoritative name server record.
	NS QueryType = 2
	// CNAME represents a canonical name for an alias.
	CNAME QueryType = 5
	// SOA represents the start of a zone of authority record.
	SOA QueryType = 6
	// PTR represents a domain name pointer record.
	PTR QueryType = 12
	// MX represents a mail exchange record.
	MX QueryType = 15
	// TXT represents text records.
	TXT QueryType = 16
	// AAAA represents an IPv6 address record.
	AAAA QueryType = 28
	// SRV represents service location records (RFC 2782).
	SRV QueryType = 33
	// TSIG represents a transaction signature record (RFC 2845).
	TSIG QueryType = 250
	// ANY is the query-section wildcard meaning "all types" (RFC1035 §3.2.3),
	// doubling as QTANY in RFC2136 prerequisite/update RRs.
	ANY QueryType = 255
)

// String returns the human-readable representation of a QueryType.
func (t QueryType) String() string {
	switch t {
	case A:
		return "A"
	case NS:
		return "NS"
	case CNAME:
		return "CNAME"
	case SOA:
		return "SOA"
	case PTR:
		return "PTR"
	case MX:
		return "MX"
	case TXT:
		return "TXT"
	case AAAA:
		return "AAAA"
	case SRV:
		return "SRV"
	case TSIG:
		return "TSIG"
	case ANY:
		return "ANY"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}

// RR classes (RFC1035 §3.2.4, RFC2136 §2.3 for NONE/ANY as RR classes).
const (
	ClassIN   uint16 = 1
	ClassCS   uint16 = 2
	ClassCH   uint16 = 3
	ClassHS   uint16 = 4
	ClassNONE uint16 = 254
	ClassANY  uint16 = 255
)

// Opcodes (RFC1035 §4.1.1, RFC2136 §2.2 for UPDATE).
const (
	OpcodeQuery  uint8 = 0
	OpcodeIQuery uint8 = 1
	OpcodeStatus uint8 = 2
	OpcodeUpdate uint8 = 5
)

// Response codes: RFC1035 §4.1.1 (0-5), RFC2136 §2.2 (6-10), RFC2845 §2.3 (16-18).
const (
	RcodeNoError  uint8 = 0
	RcodeFormErr  uint8 = 1
	RcodeServFail uint8 = 2
	RcodeNxDomain uint8 = 3
	RcodeNotImp   uint8 = 4
	RcodeRefused  uint8 = 5
	RcodeYxDomain uint8 = 6
	RcodeYxRRSet  uint8 = 7
	RcodeNxRRSet  uint8 = 8
	RcodeNotAuth  uint8 = 9
	RcodeNotZone  uint8 = 10
	RcodeBadSig   uint8 = 16
	RcodeBadKey   uint8 = 17
	RcodeBadTime  uint8 = 18
)

// DNSHeader represents the header section of a DNS packet.
type DNSHeader struct {
	ID                  uint16
	RecursionDesired    bool
	TruncatedMessage    bool
	AuthoritativeAnswer bool
	Opcode              uint8
	Response            bool
	ResCode             uint8
	CheckingDisabled    bool
	AuthedData          bool
	Z                   bool
	RecursionAvailable  bool

	// RFC 2136 (Dynamic Update) field renames, reused as-is for UPDATE
	// packets by callers rather than given separate fields:
	//   Questions            -> ZOCOUNT (number of zones, always 1)
	//   Answers              -> PRCOUNT (number of prerequisites)
	//   AuthoritativeEntries -> UPCOUNT (number of updates)
	//   ResourceEntries      -> ADCOUNT (number of additional records)
	Questions            uint16
	Answers              uint16
	AuthoritativeEntries uint16
	ResourceEntries      uint16
}

// NewDNSHeader creates and returns a pointer to a new DNSHeader.
func NewDNSHeader() *DNSHeader {
	return &DNSHeader{}
}

// Read populates the DNSHeader fields by reading from the provided buffer.
func (h *DNSHeader) Read(buffer *BytePacketBuffer) error {
	var err error
	h.ID, err = buffer.Readu16()
	if err != nil {
		return err
	}

	flags, err := buffer.Readu16()
	if err != nil {
		return err
	}

	a := uint8(flags >> 8)   // #nosec G115
	b := uint8(flags & 0xFF) // #nosec G115

	h.RecursionDesired = (a & (1 << 0)) > 0
	h.TruncatedMessage = (a & (1 << 1)) > 0
	h.AuthoritativeAnswer = (a & (1 << 2)) > 0
	h.Opcode = (a >> 3) & 0x0F
	h.Response = (a & (1 << 7)) > 0

	h.ResCode = b & 0x0F
	h.CheckingDisabled = (b & (1 << 4)) > 0
	h.AuthedData = (b & (1 << 5)) > 0
	h.Z = (b & (1 << 6)) > 0
	h.RecursionAvailable = (b & (1 << 7)) > 0

	h.Questions, err = buffer.Readu16()
	if err != nil {
		return err
	}
	h.Answers, err = buffer.Readu16()
	if err != nil {
		return err
	}
	h.AuthoritativeEntries, err = buffer.Readu16()
	if err != nil {
		return err
	}
	h.ResourceEntries, err = buffer.Readu16()
	if err != nil {
		return err
	}

	return nil
}

// Write serializes the DNSHeader into the provided buffer.
func (h *DNSHeader) Write(buffer *BytePacketBuffer) error {
	if err := buffer.Writeu16(h.ID); err != nil {
		return err
	}

	var flags uint16
	if h.Response {
		flags |= 1 << 15
	}
	flags |= uint16(h.Opcode) << 11
	if h.AuthoritativeAnswer {
		flags |= 1 << 10
	}
	if h.TruncatedMessage {
		flags |= 1 << 9
	}
	if h.RecursionDesired {
		flags |= 1 << 8
	}
	if h.RecursionAvailable {
		flags |= 1 << 7
	}
	if h.Z {
		flags |= 1 << 6
	}
	if h.AuthedData {
		flags |= 1 << 5
	}
	if h.CheckingDisabled {
		flags |= 1 << 4
	}
	flags |= uint16(h.ResCode)

	if err := buffer.Writeu16(flags); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.Questions); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.Answers); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.AuthoritativeEntries); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.ResourceEntries); err != nil {
		return err
	}

	return nil
}

// DNSQuestion represents a single question in the DNS question section.
type DNSQuestion struct {
	Name   string
	QType  QueryType
	QClass uint16
}

// NewDNSQuestion creates and returns a pointer to a new DNSQuestion with
// class IN.
func NewDNSQuestion(name string, qtype QueryType) *DNSQuestion {
	return &DNSQuestion{Name: name, QType: qtype, QClass: ClassIN}
}

// Read populates the DNSQuestion fields by reading from the provided buffer.
func (q *DNSQuestion) Read(buffer *BytePacketBuffer) error {
	var err error
	q.Name, err = buffer.ReadName()
	if err != nil {
		return err
	}

	qtype, err := buffer.Readu16()
	if err != nil {
		return err
	}
	q.QType = QueryType(qtype)

	q.QClass, err = buffer.Readu16()
	if err != nil {
		return err
	}

	return nil
}

// Write serializes the DNSQuestion into the provided buffer.
func (q *DNSQuestion) Write(buffer *BytePacketBuffer) error {
	if err := buffer.WriteName(q.Name); err != nil {
		return err
	}
	if err := buffer.Writeu16(uint16(q.QType)); err != nil {
		return err
	}
	class := q.QClass
	if class == 0 {
		class = ClassIN
	}
	return buffer.Writeu16(class)
}

// DNSRecord represents a single DNS resource record. Field presence is
// keyed off Type; unknown types round-trip as opaque Data.
type DNSRecord struct {
	Name  string
	Type  QueryType
	Class uint16
	TTL   uint32
	Data  []byte // opaque payload for unrecognized rtypes

	IP   net.IP // A/AAAA
	Host string // NS/CNAME/PTR

	Priority uint16 // MX/SRV
	Weight   uint16 // SRV
	Port     uint16 // SRV

	Txt string // TXT

	MName   string // SOA
	RName   string // SOA
	Serial  uint32 // SOA
	Refresh uint32 // SOA
	Retry   uint32 // SOA
	Expire  uint32 // SOA
	Minimum uint32 // SOA

	// TSIG (RFC 2845 §2.3)
	AlgorithmName string
	TimeSigned    uint64
	Fudge         uint16
	MAC           []byte
	OriginalID    uint16
	Error         uint16
	Other         []byte
}

// Read populates the DNSRecord fields by reading from the provided buffer.
func (r *DNSRecord) Read(buffer *BytePacketBuffer) error {
	var err error
	r.Name, err = buffer.ReadName()
	if err != nil {
		return err
	}

	typeVal, err := buffer.Readu16()
	if err != nil {
		return err
	}
	r.Type = QueryType(typeVal)

	r.Class, err = buffer.Readu16()
	if err != nil {
		return err
	}

	r.TTL, err = buffer.Readu32()
	if err != nil {
		return err
	}

	dataLen, err := buffer.Readu16()
	if err != nil {
		return err
	}
	startPos := buffer.Position()

	if dataLen == 0 {
		return nil
	}

	switch r.Type {
	case A:
		rawIP, errRead := buffer.ReadRange(buffer.Position(), 4)
		if errRead != nil {
			return errRead
		}
		r.IP = net.IP(rawIP)
		if err := buffer.Step(4); err != nil {
			return err
		}
	case AAAA:
		rawIP, errRead := buffer.ReadRange(buffer.Position(), 16)
		if errRead != nil {
			return errRead
		}
		r.IP = net.IP(rawIP)
		if err := buffer.Step(16); err != nil {
			return err
		}
	case NS, CNAME, PTR:
		if r.Host, err = buffer.ReadName(); err != nil {
			return err
		}
	case MX:
		if r.Priority, err = buffer.Readu16(); err != nil {
			return err
		}
		if r.Host, err = buffer.ReadName(); err != nil {
			return err
		}
	case SRV:
		if r.Priority, err = buffer.Readu16(); err != nil {
			return err
		}
		if r.Weight, err = buffer.Readu16(); err != nil {
			return err
		}
		if r.Port, err = buffer.Readu16(); err != nil {
			return err
		}
		if r.Host, err = buffer.ReadName(); err != nil {
			return err
		}
	case TXT:
		txtLen, errRead := buffer.Read()
		if errRead != nil {
			return errRead
		}
		txtData, errRange := buffer.ReadRange(buffer.Position(), int(txtLen))
		if errRange != nil {
			return errRange
		}
		r.Txt = string(txtData)
		if err := buffer.Step(int(txtLen)); err != nil {
			return err
		}
	case SOA:
		if r.MName, err = buffer.ReadName(); err != nil {
			return err
		}
		if r.RName, err = buffer.ReadName(); err != nil {
			return err
		}
		if r.Serial, err = buffer.Readu32(); err != nil {
			return err
		}
		if r.Refresh, err = buffer.Readu32(); err != nil {
			return err
		}
		if r.Retry, err = buffer.Readu32(); err != nil {
			return err
		}
		if r.Expire, err = buffer.Readu32(); err != nil {
			return err
		}
		if r.Minimum, err = buffer.Readu32(); err != nil {
			return err
		}
	case TSIG:
		if r.AlgorithmName, err = buffer.ReadName(); err != nil {
			return err
		}
		timeHigh, errRead := buffer.Readu16()
		if errRead != nil {
			return errRead
		}
		timeLow, errRead2 := buffer.Readu32()
		if errRead2 != nil {
			return errRead2
		}
		r.TimeSigned = uint64(timeHigh)<<32 | uint64(timeLow)
		if r.Fudge, err = buffer.Readu16(); err != nil {
			return err
		}
		macLen, errRead3 := buffer.Readu16()
		if errRead3 != nil {
			return errRead3
		}
		if r.MAC, err = buffer.ReadRange(buffer.Position(), int(macLen)); err != nil {
			return err
		}
		if err := buffer.Step(int(macLen)); err != nil {
			return err
		}
		if r.OriginalID, err = buffer.Readu16(); err != nil {
			return err
		}
		if r.Error, err = buffer.Readu16(); err != nil {
			return err
		}
		otherLen, errRead4 := buffer.Readu16()
		if errRead4 != nil {
			return errRead4
		}
		if r.Other, err = buffer.ReadRange(buffer.Position(), int(otherLen)); err != nil {
			return err
		}
		if err := buffer.Step(int(otherLen)); err != nil {
			return err
		}
	default:
		r.Data, err = buffer.ReadRange(buffer.Position(), int(dataLen))
		if err != nil {
			return err
		}
		if err := buffer.Step(int(dataLen)); err != nil {
			return err
		}
	}

	if consumed := buffer.Position() - startPos; consumed != int(dataLen) {
		return fmt.Errorf("%s RR data length mismatch: declared %d, consumed %d", r.Type, dataLen, consumed)
	}
	return nil
}

// Write serializes the DNSRecord into the provided buffer.
func (r *DNSRecord) Write(buffer *BytePacketBuffer) (int, error) {
	startPos := buffer.Position()

	if r.Type == TSIG {
		if err := buffer.WriteName(r.Name); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(uint16(r.Type)); err != nil {
			return 0, err
		}
		class := r.Class
		if class == 0 {
			class = ClassANY
		}
		if err := buffer.Writeu16(class); err != nil {
			return 0, err
		}
		if err := buffer.Writeu32(r.TTL); err != nil {
			return 0, err
		}
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.AlgorithmName); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(uint16(r.TimeSigned >> 32)); err != nil { // #nosec G115
			return 0, err
		}
		if err := buffer.Writeu32(uint32(r.TimeSigned & 0xFFFFFFFF)); err != nil { // #nosec G115
			return 0, err
		}
		if err := buffer.Writeu16(r.Fudge); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(uint16(len(r.MAC))); err != nil { // #nosec G115
			return 0, err
		}
		for _, b := range r.MAC {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
		if err := buffer.Writeu16(r.OriginalID); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(r.Error); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(uint16(len(r.Other))); err != nil { // #nosec G115
			return 0, err
		}
		for _, b := range r.Other {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
		return finishRData(buffer, startPos, lenPos)
	}

	if err := buffer.WriteName(r.Name); err != nil {
		return 0, err
	}
	if err := buffer.Writeu16(uint16(r.Type)); err != nil {
		return 0, err
	}
	if err := buffer.Writeu16(r.Class); err != nil {
		return 0, err
	}
	if err := buffer.Writeu32(r.TTL); err != nil {
		return 0, err
	}

	// RFC 2136 §2.5.2: class ANY (delete-RRset) RRs carry RDLENGTH=0 and no
	// RDATA regardless of rtype. Class NONE (delete-one-RR) carries a real
	// type and data, so it falls through to normal encoding below.
	if r.Class == ClassANY {
		return 0, buffer.Writeu16(0)
	}

	switch r.Type {
	case A:
		if err := buffer.Writeu16(4); err != nil {
			return 0, err
		}
		for _, b := range r.IP.To4() {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
	case AAAA:
		if err := buffer.Writeu16(16); err != nil {
			return 0, err
		}
		for _, b := range r.IP.To16() {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
	case NS, CNAME, PTR:
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.Host); err != nil {
			return 0, err
		}
		return finishRData(buffer, startPos, lenPos)
	case MX:
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(r.Priority); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.Host); err != nil {
			return 0, err
		}
		return finishRData(buffer, startPos, lenPos)
	case SRV:
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(r.Priority); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(r.Weight); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(r.Port); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.Host); err != nil {
			return 0, err
		}
		return finishRData(buffer, startPos, lenPos)
	case TXT:
		if err := buffer.Writeu16(uint16(len(r.Txt) + 1)); err != nil { // #nosec G115
			return 0, err
		}
		if err := buffer.Write(byte(len(r.Txt))); err != nil { // #nosec G115
			return 0, err
		}
		for i := 0; i < len(r.Txt); i++ {
			if err := buffer.Write(r.Txt[i]); err != nil {
				return 0, err
			}
		}
	case SOA:
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.MName); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.RName); err != nil {
			return 0, err
		}
		if err := buffer.Writeu32(r.Serial); err != nil {
			return 0, err
		}
		if err := buffer.Writeu32(r.Refresh); err != nil {
			return 0, err
		}
		if err := buffer.Writeu32(r.Retry); err != nil {
			return 0, err
		}
		if err := buffer.Writeu32(r.Expire); err != nil {
			return 0, err
		}
		if err := buffer.Writeu32(r.Minimum); err != nil {
			return 0, err
		}
		return finishRData(buffer, startPos, lenPos)
	default:
		// Opaque passthrough, including a bare class-NONE delete-one-RR
		// marker RR that carries only a type (no data the caller filled in).
		if err := buffer.Writeu16(uint16(len(r.Data))); err != nil { // #nosec G115
			return 0, err
		}
		for _, b := range r.Data {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
	}

	return buffer.Position() - startPos, nil
}

// finishRData backpatches the two-byte RDLENGTH field at lenPos once the
// record's variable-length, possibly name-compressed RDATA has been
// written, and returns the total bytes written for the record.
func finishRData(buffer *BytePacketBuffer, startPos, lenPos int) (int, error) {
	currPos := buffer.Position()
	if err := buffer.Seek(lenPos); err != nil {
		return 0, err
	}
	if err := buffer.Writeu16(uint16(currPos - (lenPos + 2))); err != nil { // #nosec G115
		return 0, err
	}
	if err := buffer.Seek(currPos); err != nil {
		return 0, err
	}
	return currPos - startPos, nil
}

// DNSPacket represents a complete DNS packet (RFC1035 §4, RFC2136 §2.2 for
// UPDATE section naming).
type DNSPacket struct {
	Header      DNSHeader
	Questions   []DNSQuestion
	Answers     []DNSRecord
	Authorities []DNSRecord
	Resources   []DNSRecord
	TSIGStart   int // byte offset where the TSIG record starts, -1 if absent
	TSIGCtx     *TSIGContext // set by VerifyTSIG when a matching key was found, nil on BADKEY
}

// NewDNSPacket creates and returns a pointer to a new, empty DNSPacket.
func NewDNSPacket() *DNSPacket {
	return &DNSPacket{
		Questions:   []DNSQuestion{},
		Answers:     []DNSRecord{},
		Authorities: []DNSRecord{},
		Resources:   []DNSRecord{},
		TSIGStart:   -1,
	}
}

// addDedup appends rr to *list unless a record with the same name+type and
// an equal RDATA is already present, matching the head+data de-duplication
// rule used when merging response sections.
func addDedup(list *[]DNSRecord, rr DNSRecord) {
	for _, existing := range *list {
		if existing.Name == rr.Name && existing.Type == rr.Type && sameRData(existing, rr) {
			return
		}
	}
	*list = append(*list, rr)
}

// AddAnswer appends rr to the answer section, de-duplicating by (name, type, data).
func (p *DNSPacket) AddAnswer(rr DNSRecord) { addDedup(&p.Answers, rr) }

// AddAuthority appends rr to the authority section, de-duplicating by (name, type, data).
func (p *DNSPacket) AddAuthority(rr DNSRecord) { addDedup(&p.Authorities, rr) }

// AddResource appends rr to the additional section, de-duplicating by (name, type, data).
func (p *DNSPacket) AddResource(rr DNSRecord) { addDedup(&p.Resources, rr) }

// AllRRs returns every resource record across answer, authority and
// additional sections.
func (p *DNSPacket) AllRRs() []DNSRecord {
	all := make([]DNSRecord, 0, len(p.Answers)+len(p.Authorities)+len(p.Resources))
	all = append(all, p.Answers...)
	all = append(all, p.Authorities...)
	all = append(all, p.Resources...)
	return all
}

// GetAnswer returns the first RR of the given type for name across all
// sections, or nil.
func (p *DNSPacket) GetAnswer(name string, rtype QueryType) *DNSRecord {
	for i, rr := range p.AllRRs() {
		if rr.Type == rtype && rr.Name == name {
			return &p.AllRRs()[i]
		}
	}
	return nil
}

// HasAnswers reports whether every question has either a direct answer or
// a CNAME chase that resolves to one.
func (p *DNSPacket) HasAnswers() bool {
	for _, q := range p.Questions {
		answered := false
		for _, rr := range p.AllRRs() {
			if rr.Type == q.QType && rr.Name == q.Name {
				answered = true
				break
			}
			if rr.Type == CNAME && rr.Name == q.Name && p.GetAnswer(rr.Host, q.QType) != nil {
				answered = true
				break
			}
		}
		if !answered {
			return false
		}
	}
	return true
}

// sameRData compares the RDATA-relevant fields of two records of the same
// type, used by the de-duplication helpers above.
func sameRData(a, b DNSRecord) bool {
	switch a.Type {
	case A, AAAA:
		return a.IP.Equal(b.IP)
	case NS, CNAME, PTR:
		return a.Host == b.Host
	case MX:
		return a.Priority == b.Priority && a.Host == b.Host
	case SRV:
		return a.Priority == b.Priority && a.Weight == b.Weight && a.Port == b.Port && a.Host == b.Host
	case TXT:
		return a.Txt == b.Txt
	case SOA:
		return a.MName == b.MName && a.RName == b.RName && a.Serial == b.Serial
	default:
		return string(a.Data) == string(b.Data)
	}
}

// FromBuffer populates the DNSPacket by reading from the provided buffer.
func (p *DNSPacket) FromBuffer(buffer *BytePacketBuffer) error {
	if err := p.Header.Read(buffer); err != nil {
		return err
	}
	for i := 0; i < int(p.Header.Questions); i++ {
		var q DNSQuestion
		if err := q.Read(buffer); err != nil {
			return err
		}
		p.Questions = append(p.Questions, q)
	}
	for i := 0; i < int(p.Header.Answers); i++ {
		var r DNSRecord
		if err := r.Read(buffer); err != nil {
			return err
		}
		p.Answers = append(p.Answers, r)
	}
	for i := 0; i < int(p.Header.AuthoritativeEntries); i++ {
		var r DNSRecord
		if err := r.Read(buffer); err != nil {
			return err
		}
		p.Authorities = append(p.Authorities, r)
	}
	for i := 0; i < int(p.Header.ResourceEntries); i++ {
		start := buffer.Position()
		var r DNSRecord
		if err := r.Read(buffer); err != nil {
			return err
		}
		if r.Type == TSIG {
			p.TSIGStart = start
		}
		p.Resources = append(p.Resources, r)
	}
	return nil
}

// Write serializes the complete DNSPacket into the provided buffer,
// recomputing the section counts from the slice lengths first.
func (p *DNSPacket) Write(buffer *BytePacketBuffer) error {
	p.Header.Questions = uint16(len(p.Questions))             // #nosec G115
	p.Header.Answers = uint16(len(p.Answers))                 // #nosec G115
	p.Header.AuthoritativeEntries = uint16(len(p.Authorities)) // #nosec G115
	p.Header.ResourceEntries = uint16(len(p.Resources))        // #nosec G115

	if err := p.Header.Write(buffer); err != nil {
		return err
	}
	for _, q := range p.Questions {
		if err := q.Write(buffer); err != nil {
			return err
		}
	}
	for _, a := range p.Answers {
		if _, err := a.Write(buffer); err != nil {
			return err
		}
	}
	for _, a := range p.Authorities {
		if _, err := a.Write(buffer); err != nil {
			return err
		}
	}
	for _, a := range p.Resources {
		if _, err := a.Write(buffer); err != nil {
			return err
		}
	}
	return nil
}

// ResponseFor builds an empty response packet echoing pkt's question
// section, id and opcode, with the response flag set.
func ResponseFor(pkt *DNSPacket, rescode uint8) *DNSPacket {
	resp := NewDNSPacket()
	resp.Header.ID = pkt.Header.ID
	resp.Header.Response = true
	resp.Header.Opcode = pkt.Header.Opcode
	resp.Header.ResCode = rescode
	resp.Questions = append(resp.Questions, pkt.Questions...)
	return resp
}
