package netif

import (
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

// route is one forwarding table entry: a prefix of prefixLen bits, an
// optional next hop (nil for a directly-connected network, where the
// datagram's own destination is used instead), and the outgoing interface.
type route struct {
	prefix    uint32
	prefixLen uint8
	nextHop   *[4]byte
	ifaceNum  int
}

// Router forwards IPv4 datagrams between attached NetworkInterfaces using
// longest-prefix-match lookup, decrementing TTL and dropping datagrams that
// would expire.
type Router struct {
	log    *slog.Logger
	ifaces []*NetworkInterface
	routes []route // kept sorted by prefixLen descending
}

// NewRouter constructs an empty Router.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// AddInterface attaches a NetworkInterface to the router, returning its
// assigned interface number.
func (r *Router) AddInterface(iface *NetworkInterface) int {
	r.ifaces = append(r.ifaces, iface)
	return len(r.ifaces) - 1
}

// AddRoute installs a forwarding table entry for prefix/prefixLen. A nil
// nextHop means the network is directly connected (forward to the
// datagram's own destination address).
func (r *Router) AddRoute(prefix uint32, prefixLen uint8, nextHop *[4]byte, ifaceNum int) {
	r.log.Debug("adding route", "prefix", prefix, "prefix_len", prefixLen, "iface", ifaceNum)

	r.routes = append(r.routes, route{prefix: prefix, prefixLen: prefixLen, nextHop: nextHop, ifaceNum: ifaceNum})
	sort.SliceStable(r.routes, func(i, j int) bool { return r.routes[i].prefixLen > r.routes[j].prefixLen })
}

// Route drains every interface's received-datagram queue and forwards each
// one according to the longest matching route, in two phases: first
// collecting everything interfaces have delivered since the last call, then
// routing it, so routing decisions never interleave with interfaces that
// are still being drained.
func (r *Router) Route() {
	var batch [][]byte
	for _, iface := range r.ifaces {
		batch = append(batch, iface.DatagramsOut()...)
	}

	for _, raw := range batch {
		r.routeOne(raw)
	}
}

func (r *Router) routeOne(raw []byte) {
	var ip header.IPv4Header
	payload, result := ip.Parse(raw)
	if result != header.NoError {
		return
	}

	if ip.TTL <= 1 {
		return
	}
	ip.TTL--

	dst := binary.BigEndian.Uint32(ip.Dst[:])

	for _, rt := range r.routes {
		// Go defines x >> 32 on a uint32 as 0, so a /0 default route (shift
		// of 32) always matches here without special-casing it.
		shift := 32 - uint32(rt.prefixLen)
		if (dst^rt.prefix)>>shift != 0 {
			continue
		}

		nextHop := ip.Dst
		if rt.nextHop != nil {
			nextHop = *rt.nextHop
		}

		datagram := append(ip.Serialize(), payload...)
		r.ifaces[rt.ifaceNum].SendDatagram(datagram, nextHop)
		return
	}
}
