//go:build linux

package tunnel

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ifNameSize = 16
	iffTap     = 0x0002
	iffNoPI    = 0x1000
	tunSetIFF  = 0x400454ca
)

type ifReq struct {
	name  [ifNameSize]byte
	flags uint16
	_     [22]byte
}

// OpenTUN creates (or opens), through /dev/net/tun, a Linux TAP device named
// name and returns the raw file it can be read from and written to, one
// Ethernet frame per read/write as set by IFF_TAP|IFF_NO_PI.
func OpenTUN(name string) (*os.File, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tunnel: open /dev/net/tun: %w", err)
	}

	var req ifReq
	copy(req.name[:], name)
	req.flags = iffTap | iffNoPI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(tunSetIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("tunnel: TUNSETIFF %q: %w", name, errno)
	}

	return os.NewFile(uintptr(fd), name), nil
}
