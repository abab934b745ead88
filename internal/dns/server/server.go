// Package server implements the authoritative/recursive DNS server core: a
// listener per bound UDP socket, a bounded work queue guarded by a
// condition variable, an elastic pool of dispatcher goroutines, and the
// per-question zone-selection and TSIG chaining pipeline. Ported from
// ldd/server.py's dnsserver class (socklistener/dispatcher/queuemonitor).
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nimbusdns/nimbus/internal/dns/packet"
	"github.com/nimbusdns/nimbus/internal/infrastructure/metrics"
)

// DefaultMaxDispatchers caps the queue monitor's elastic dispatcher
// spawning. The source spawns without bound whenever the queue head has
// waited more than a second; unbounded growth under sustained overload
// would exhaust the process, so production deployments get a ceiling.
const DefaultMaxDispatchers = 256

// DefaultQueueCapacity bounds the pending-request FIFO. A request that
// arrives when the queue is full is dropped and logged rather than
// blocking the listener goroutine.
const DefaultQueueCapacity = 10000

// Handler answers a single question against a zone's backing data,
// mirroring ldd/server.py's handler.handle(query, pkt, origin). Unlike the
// source, the caller's network source address is passed explicitly rather
// than stashed on the packet, so addrfilter-style composition stays a pure
// function of its arguments. internal indicates the query originated from
// this server's own recurser resolving glue, matching pkt's "internal" flag
// in the source.
type Handler interface {
	Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket

func (f HandlerFunc) Handle(ctx context.Context, q packet.DNSQuestion, pkt *packet.DNSPacket, origin string, src net.Addr, internal bool) *packet.DNSPacket {
	return f(ctx, q, pkt, origin, src, internal)
}

// Zone pairs an origin with the Handler responsible for it, the Go
// counterpart of ldd/server.py's zone class (origin, handler).
type Zone struct {
	Origin  string
	Handler Handler
}

func withinOrigin(name, origin string) bool {
	name, origin = strings.ToLower(name), strings.ToLower(origin)
	if origin == "." {
		return true
	}
	return name == origin || strings.HasSuffix(name, "."+origin)
}

type queuedReq struct {
	arrived time.Time
	pkt     *packet.DNSPacket
	raw     []byte
	src     net.Addr
	conn    net.PacketConn
}

// Server is the DNS engine's concurrency core: one goroutine per bound
// socket reading and decoding packets, a bounded FIFO of decoded requests,
// and an elastic pool of dispatcher goroutines draining it.
type Server struct {
	Logger         *slog.Logger
	Zones          []*Zone
	TSIGKeys       packet.TSIGKeyTable
	MaxDispatchers int
	QueueCapacity  int

	limiter *rateLimiter

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []queuedReq
	dispatchers int
	running     bool
	sockets     []net.PacketConn
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewServer builds a Server with its rate limiter and condition variable
// initialized. Sockets are bound separately via ListenUDP; zones are
// registered via AddZone before Start.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Logger:         logger,
		TSIGKeys:       make(packet.TSIGKeyTable),
		MaxDispatchers: DefaultMaxDispatchers,
		QueueCapacity:  DefaultQueueCapacity,
		limiter:        newRateLimiter(200000, 100000),
		stopCh:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ListenUDP binds one SO_REUSEPORT UDP socket per CPU on network ("udp",
// "udp4" or "udp6") and addr, so the kernel load-balances inbound datagrams
// across sockets instead of a single listener goroutine fanning them out.
// Each bound socket gets its own listener goroutine (see Start), matching
// ldd/server.py's one-listener-per-addsock'd-socket model, generalized from
// a single socket to a reuseport set.
func (s *Server) ListenUDP(network, addr string) error {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) { ctrlErr = setReusePort(fd) }); err != nil {
				return err
			}
			return ctrlErr
		},
	}

	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		conn, err := lc.ListenPacket(context.Background(), network, addr)
		if err != nil {
			return err
		}
		s.sockets = append(s.sockets, conn)
	}
	return nil
}

// AddZone registers a Handler for origin.
func (s *Server) AddZone(origin string, h Handler) {
	s.Zones = append(s.Zones, &Zone{Origin: origin, Handler: h})
}

// Start launches the listener goroutines, the initial dispatcher pool (ten,
// matching the source), the queue monitor and the rate-limiter's periodic
// bucket cleanup.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already running")
	}
	s.running = true
	s.mu.Unlock()

	for _, conn := range s.sockets {
		s.wg.Add(1)
		go s.listen(conn)
	}
	for i := 0; i < 10; i++ {
		s.spawnDispatcher()
	}
	s.wg.Add(1)
	go s.monitorQueue()
	s.wg.Add(1)
	go s.cleanupLimiter()
	return nil
}

// cleanupLimiter evicts rate-limiter buckets idle for more than 10 minutes
// every 5 minutes, so a long-lived server doesn't accumulate one bucket per
// distinct source IP it has ever seen.
func (s *Server) cleanupLimiter() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}

// Stop signals the listener and every dispatcher to exit, wakes anyone
// waiting on the queue, closes the sockets and joins every goroutine.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
	for _, conn := range s.sockets {
		conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) listen(conn net.PacketConn) {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		// 1-second read deadline stands in for the source's
		// select.poll(1000) timeout, letting this goroutine notice
		// shutdown without a separate wakeup mechanism.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}

		host, _, _ := net.SplitHostPort(addr.String())
		if !s.limiter.Allow(host) {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		pb := packet.GetBuffer()
		pb.Load(data)
		req := packet.NewDNSPacket()
		if err := req.FromBuffer(pb); err != nil {
			packet.PutBuffer(pb)
			s.Logger.Warn("failed to decode request", "src", addr, "error", err)
			s.sendFormErr(conn, addr, qidOf(data))
			continue
		}
		packet.PutBuffer(pb)

		s.enqueue(queuedReq{arrived: time.Now(), pkt: req, raw: data, src: addr, conn: conn})
	}
}

func qidOf(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return uint16(data[0])<<8 | uint16(data[1])
}

func (s *Server) sendFormErr(conn net.PacketConn, addr net.Addr, qid uint16) {
	resp := packet.NewDNSPacket()
	resp.Header.ID = qid
	resp.Header.Response = true
	resp.Header.ResCode = packet.RcodeFormErr
	s.writeResponse(conn, addr, resp)
}

func (s *Server) enqueue(req queuedReq) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.queueCapacity() {
		s.Logger.Warn("request queue full, dropping request", "src", req.src)
		return
	}
	s.queue = append(s.queue, req)
	s.cond.Signal()
}

func (s *Server) queueCapacity() int {
	if s.QueueCapacity > 0 {
		return s.QueueCapacity
	}
	return DefaultQueueCapacity
}

func (s *Server) dequeue() (queuedReq, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && s.running {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return queuedReq{}, false
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	return req, true
}

func (s *Server) queueHeadAge() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	return time.Since(s.queue[0].arrived), true
}

func (s *Server) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Server) dispatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchers
}

func (s *Server) spawnDispatcher() {
	s.mu.Lock()
	s.dispatchers++
	n := s.dispatchers
	s.mu.Unlock()
	s.Logger.Debug("starting dispatcher", "count", n)
	s.wg.Add(1)
	go s.dispatchLoop()
}

func (s *Server) dispatchLoop() {
	defer s.wg.Done()
	for {
		req, ok := s.dequeue()
		if !ok {
			return
		}
		metrics.ActiveWorkers.Inc()
		start := time.Now()
		resp := s.handle(context.Background(), req.pkt, req.raw, req.src, false)
		if resp == nil {
			resp = packet.ResponseFor(req.pkt, packet.RcodeServFail)
		}
		metrics.QueryDuration.WithLabelValues("udp").Observe(time.Since(start).Seconds())
		qtype := "unknown"
		if len(req.pkt.Questions) > 0 {
			qtype = req.pkt.Questions[0].QType.String()
		}
		metrics.QueriesTotal.WithLabelValues(qtype, strconv.Itoa(int(resp.Header.ResCode)), "udp").Inc()
		metrics.ActiveWorkers.Dec()
		s.writeResponse(req.conn, req.src, resp)
	}
}

// monitorQueue wakes every second; if the request at the head of the queue
// has waited more than a second, it spawns another dispatcher, up to
// MaxDispatchers.
func (s *Server) monitorQueue() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			metrics.DispatcherCount.Set(float64(s.dispatcherCount()))
			metrics.QueueDepth.Set(float64(s.queueLen()))
			age, has := s.queueHeadAge()
			if has && age > time.Second && s.dispatcherCount() < s.maxDispatchers() {
				s.spawnDispatcher()
			}
		}
	}
}

func (s *Server) maxDispatchers() int {
	if s.MaxDispatchers > 0 {
		return s.MaxDispatchers
	}
	return DefaultMaxDispatchers
}

func (s *Server) writeResponse(conn net.PacketConn, addr net.Addr, resp *packet.DNSPacket) {
	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	buf.HasNames = true
	if err := resp.Write(buf); err != nil {
		s.Logger.Error("failed to encode response", "error", err)
		return
	}
	if resp.TSIGCtx != nil && !lastIsTSIG(resp) {
		key := resp.TSIGCtx.Key
		if err := packet.SignTSIG(resp, buf, key, resp.TSIGCtx); err != nil {
			s.Logger.Error("failed to sign response", "error", err)
		}
	}
	if _, err := conn.WriteTo(buf.Buf[:buf.Position()], addr); err != nil {
		s.Logger.Error("failed to send response", "addr", addr, "error", err)
	}
}

func lastIsTSIG(pkt *packet.DNSPacket) bool {
	return len(pkt.Resources) > 0 && pkt.Resources[len(pkt.Resources)-1].Type == packet.TSIG
}

// handle implements the handling pipeline from spec §4.7: verify TSIG if
// any keys are configured, dispatch each question to its longest-origin
// matching zone, merge responses, chain-sign if the result carries a TSIG
// context. Grounded on ldd/server.py's dnsserver.handle.
func (s *Server) handle(ctx context.Context, req *packet.DNSPacket, raw []byte, src net.Addr, internal bool) *packet.DNSPacket {
	if len(s.TSIGKeys) > 0 && req.TSIGStart >= 0 {
		if _, err := packet.VerifyTSIG(req, raw, req.TSIGStart, s.TSIGKeys); err != nil {
			s.Logger.Debug("tsig verification failed", "error", err)
		}
	}

	if len(req.Questions) == 0 {
		return nil
	}

	var resp *packet.DNSPacket
	for _, q := range req.Questions {
		z := s.selectZone(q.Name)
		if z == nil {
			return nil
		}
		cur := z.Handler.Handle(ctx, q, req, z.Origin, src, internal)
		if resp == nil {
			resp = cur
		} else if cur != nil {
			mergeResponses(resp, cur)
		}
	}

	if resp != nil && req.TSIGCtx != nil {
		resp.TSIGCtx = req.TSIGCtx
	}
	return resp
}

// selectZone picks the registered zone whose origin contains name,
// preferring the longest origin on ties, matching the source's linear
// best-match scan over self.zones.
func (s *Server) selectZone(name string) *Zone {
	var match *Zone
	for _, z := range s.Zones {
		if !withinOrigin(name, z.Origin) {
			continue
		}
		if match == nil || len(z.Origin) > len(match.Origin) {
			match = z
		}
	}
	return match
}

func mergeResponses(dst, src *packet.DNSPacket) {
	dst.Questions = append(dst.Questions, src.Questions...)
	for _, rr := range src.Answers {
		dst.AddAnswer(rr)
	}
	for _, rr := range src.Authorities {
		dst.AddAuthority(rr)
	}
	for _, rr := range src.Resources {
		dst.AddResource(rr)
	}
}

// InternalResolver lets the server answer its own recurser's glue lookups
// without a network round trip, the Go equivalent of ldd/server.py's
// dnsserver.resolver() returning a resolver bound back into self.handle
// with the "internal" flag set.
type InternalResolver struct {
	Server *Server
	Src    net.Addr
}

func (r *InternalResolver) Resolve(pkt *packet.DNSPacket) (*packet.DNSPacket, error) {
	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	buf.HasNames = true
	raw := []byte{}
	if err := pkt.Write(buf); err == nil {
		raw = buf.Buf[:buf.Position()]
	}
	return r.Server.handle(context.Background(), pkt, raw, r.Src, true), nil
}

func (r *InternalResolver) SQuery(name string, rtype packet.QueryType) (*packet.DNSPacket, error) {
	req := packet.NewDNSPacket()
	req.Questions = append(req.Questions, *packet.NewDNSQuestion(name, rtype))
	return r.Resolve(req)
}
