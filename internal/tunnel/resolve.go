package tunnel

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up A records against a single upstream DNS server, for
// turning the hostname given to `minnow connect`/`minnow webget` into an
// IPv4 address before a TCPConnection can be dialed.
type Resolver struct {
	log    *slog.Logger
	client *dns.Client
	server string
}

// NewResolver builds a Resolver that queries server (host:port, e.g.
// "8.8.8.8:53").
func NewResolver(log *slog.Logger, server string) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		log:    log,
		client: &dns.Client{Timeout: 5 * time.Second},
		server: server,
	}
}

// LookupA resolves name to its first IPv4 address.
func (r *Resolver) LookupA(name string) ([4]byte, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	reply, _, err := r.client.Exchange(msg, r.server)
	if err != nil {
		return [4]byte{}, fmt.Errorf("tunnel: dns query %q: %w", name, err)
	}
	if reply.Rcode != dns.RcodeSuccess {
		return [4]byte{}, fmt.Errorf("tunnel: dns query %q: rcode %s", name, dns.RcodeToString[reply.Rcode])
	}

	for _, ans := range reply.Answer {
		a, ok := ans.(*dns.A)
		if !ok {
			continue
		}
		ip4 := a.A.To4()
		if ip4 == nil {
			continue
		}
		r.log.Debug("tunnel: resolved name", "name", name, "addr", a.A.String())
		var out [4]byte
		copy(out[:], ip4)
		return out, nil
	}

	return [4]byte{}, fmt.Errorf("tunnel: no A record for %q", name)
}
