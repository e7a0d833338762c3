// Command minnow drives the tcpip/netif stack against a real network:
// connect and webget dial outbound TCP connections over a TUN device or a
// UDP tunnel, and router forwards IPv4 traffic between interfaces described
// by a YAML config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/minnow-os/minnow/internal/pcap"
	"github.com/minnow-os/minnow/internal/tcpip"
	"github.com/minnow-os/minnow/internal/tcpip/header"
	"github.com/minnow-os/minnow/internal/tcpip/netif"
	"github.com/minnow-os/minnow/internal/tunnel"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "minnow: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	switch args[0] {
	case "connect":
		return runConnect(args[1:])
	case "webget":
		return runWebget(args[1:])
	case "router":
		return runRouter(args[1:])
	default:
		usage()
		os.Exit(1)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `minnow - a userspace TCP/IP stack

USAGE:
  minnow connect <host> <port> [-tun name | -udp peer:port] [-pcap file]
  minnow webget <host> <path> [-tun name | -udp peer:port] [-pcap file]
  minnow router -config routes.yaml [-pcap file]
`)
}

func openPcap(path string) (*pcap.Writer, *os.File, error) {
	if path == "" {
		return nil, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create pcap file: %w", err)
	}
	w := pcap.NewWriter(f)
	if err := w.WriteFileHeader(65535, pcap.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("write pcap header: %w", err)
	}
	return w, f, nil
}

// localClient opens either a TUN device or a UDP tunnel (whichever the
// "-udp" flag names), builds the interface it drives, and returns the
// Stack/EventLoop pair ready to dial a connection.
func localClient(fs *flag.FlagSet, remoteIP [4]byte, remotePort uint16) (*tunnel.Stack, *tunnel.EventLoop, func(), error) {
	tunName := fs.Lookup("tun").Value.String()
	pcapPath := fs.Lookup("pcap").Value.String()
	udpPeer := ""
	if f := fs.Lookup("udp"); f != nil {
		udpPeer = f.Value.String()
	}

	var device tunnel.FrameDevice
	var closeDevice func() error
	if udpPeer != "" {
		t, err := tunnel.DialUDPTunnel(":0", udpPeer)
		if err != nil {
			return nil, nil, nil, err
		}
		device, closeDevice = t, t.Close
	} else {
		dev, err := tunnel.OpenTUN(tunName)
		if err != nil {
			return nil, nil, nil, err
		}
		device, closeDevice = dev, dev.Close
	}

	var pcapFile *os.File
	if w, f, err := openPcap(pcapPath); err != nil {
		closeDevice()
		return nil, nil, nil, err
	} else if w != nil {
		device = tunnel.NewCapturingDevice(device, w)
		pcapFile = f
	}

	mac := header.Address{0x02, 0x00, 0x00, 0x00, 0x00, byte(rand.Intn(256))}
	localIP := [4]byte{10, 0, 0, 1}

	iface := netif.NewNetworkInterface(slog.Default(), mac, localIP)
	loop := tunnel.NewEventLoop(slog.Default(), device, iface, 1500)
	stack := tunnel.NewStack(slog.Default(), iface)
	loop.OnPoll(stack.Pump)

	cleanup := func() {
		closeDevice()
		if pcapFile != nil {
			pcapFile.Close()
		}
	}

	return stack, loop, cleanup, nil
}

func runConnect(args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	fs.String("tun", "minnow0", "TUN device name")
	fs.String("udp", "", "use a UDP tunnel to this host:port instead of a TUN device")
	fs.String("pcap", "", "write captured frames to this pcap file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: minnow connect <host> <port>")
	}
	host, portStr := fs.Arg(0), fs.Arg(1)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	remoteIP, err := resolveHost(host)
	if err != nil {
		return err
	}

	stack, loop, cleanup, err := localClient(fs, remoteIP, uint16(port))
	if err != nil {
		return err
	}
	defer cleanup()

	conn := stack.Dial(uint16(1024+rand.Intn(60000)), remoteIP, uint16(port))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	return bridgeTerminal(ctx, conn)
}

// bridgeTerminal copies stdin into conn and conn's inbound stream to
// stdout, putting the local terminal into raw mode for the duration so
// control characters reach the remote side untranslated. Stdin reaching EOF
// only ends the outbound stream; it returns once the inbound stream reaches
// EOF, the connection stops being active with nothing left to read, or ctx
// is canceled.
func bridgeTerminal(ctx context.Context, conn *tcpip.TCPConnection) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, oldState)
		}
	}

	stdinClosed := make(chan struct{})
	go func() {
		defer close(stdinClosed)
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				conn.Write(buf[:n])
			}
			if err != nil {
				conn.EndInputStream()
				return
			}
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stdinClosed:
			stdinClosed = nil
		case <-ticker.C:
			in := conn.InboundStream()
			if data := in.Read(in.BufferSize()); len(data) > 0 {
				os.Stdout.Write(data)
			}
			if in.EOF() || (!conn.Active() && in.BufferEmpty()) {
				return nil
			}
		}
	}
}

func runWebget(args []string) error {
	fs := flag.NewFlagSet("webget", flag.ExitOnError)
	fs.String("tun", "minnow0", "TUN device name")
	fs.String("udp", "", "use a UDP tunnel to this host:port instead of a TUN device")
	fs.String("pcap", "", "write captured frames to this pcap file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: minnow webget <host> <path>")
	}
	host, path := fs.Arg(0), fs.Arg(1)

	remoteIP, err := resolveHost(host)
	if err != nil {
		return err
	}

	stack, loop, cleanup, err := localClient(fs, remoteIP, 80)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	conn := stack.Dial(uint16(1024+rand.Intn(60000)), remoteIP, 80)

	request := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	conn.Write([]byte(request))
	conn.EndInputStream()

	return webgetDownload(ctx, conn, os.Stdout)
}

// webgetDownload polls conn's inbound stream until the connection reports
// EOF (the server closed its half after Connection: close), mirroring the
// response into out behind an indeterminate terminal progress bar (the
// response is not parsed, so its length is never known).
func webgetDownload(ctx context.Context, conn *tcpip.TCPConnection, out io.Writer) error {
	bar := progressbar.DefaultBytes(-1, "webget")
	defer bar.Close()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			in := conn.InboundStream()
			if data := in.Read(in.BufferSize()); len(data) > 0 {
				n, err := out.Write(data)
				bar.Add(n)
				if err != nil {
					return err
				}
			}
			if in.EOF() {
				return nil
			}
			if !conn.Active() && in.BufferEmpty() {
				if in.Error() {
					return fmt.Errorf("minnow: connection reset before response completed")
				}
				return nil
			}
		}
	}
}

func resolveHost(host string) ([4]byte, error) {
	if ip, err := tunnel.ParseIPv4(host); err == nil {
		return ip, nil
	}
	return tunnel.NewResolver(slog.Default(), "8.8.8.8:53").LookupA(host)
}

func runRouter(args []string) error {
	fs := flag.NewFlagSet("router", flag.ExitOnError)
	configPath := fs.String("config", "", "path to router YAML config")
	pcapPath := fs.String("pcap", "", "write captured frames to this pcap file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("usage: minnow router -config routes.yaml")
	}

	cfg, err := tunnel.LoadRouterConfig(*configPath)
	if err != nil {
		return err
	}

	var pcapWriter *pcap.Writer
	if *pcapPath != "" {
		w, f, err := openPcap(*pcapPath)
		if err != nil {
			return err
		}
		pcapWriter = w
		defer f.Close()
	}

	router := netif.NewRouter(slog.Default())
	var links []tunnel.RouterLink
	byName := make(map[string]int)

	for _, ic := range cfg.Interfaces {
		mac, err := tunnel.ParseMAC(ic.MAC)
		if err != nil {
			return err
		}
		ip, err := tunnel.ParseIPv4(ic.IP)
		if err != nil {
			return err
		}
		tunName := ic.TUN
		if tunName == "" {
			tunName = ic.Name
		}
		dev, err := tunnel.OpenTUN(tunName)
		if err != nil {
			return fmt.Errorf("open tun %q: %w", tunName, err)
		}

		var device tunnel.FrameDevice = dev
		if pcapWriter != nil {
			device = tunnel.NewCapturingDevice(dev, pcapWriter)
		}

		iface := netif.NewNetworkInterface(slog.Default(), mac, ip)
		ifaceNum := router.AddInterface(iface)
		byName[ic.Name] = ifaceNum

		links = append(links, tunnel.RouterLink{Iface: iface, Device: device})
	}

	for _, rc := range cfg.Routes {
		prefixIP, err := tunnel.ParseIPv4(rc.Prefix)
		if err != nil {
			return err
		}
		var prefix uint32
		for _, b := range prefixIP {
			prefix = prefix<<8 | uint32(b)
		}

		var nextHop *[4]byte
		if rc.NextHop != "" {
			hop, err := tunnel.ParseIPv4(rc.NextHop)
			if err != nil {
				return err
			}
			nextHop = &hop
		}

		ifaceNum, ok := byName[rc.Interface]
		if !ok {
			return fmt.Errorf("router: route references unknown interface %q", rc.Interface)
		}
		router.AddRoute(prefix, rc.PrefixLen, nextHop, ifaceNum)
	}

	loop := tunnel.NewRouterEventLoop(slog.Default(), router, links)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return loop.Run(ctx)
}
