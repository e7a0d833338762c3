package tunnel

import (
	"time"

	"github.com/minnow-os/minnow/internal/pcap"
)

// CapturingDevice wraps a FrameDevice, mirroring every frame read or
// written through it into a pcap.Writer, for the optional "-pcap" flag on
// the CLI's connect/webget/router subcommands.
type CapturingDevice struct {
	FrameDevice
	w *pcap.Writer
}

// NewCapturingDevice wraps device so every frame it carries is also
// appended to w. Callers must have already called w.WriteFileHeader.
func NewCapturingDevice(device FrameDevice, w *pcap.Writer) *CapturingDevice {
	return &CapturingDevice{FrameDevice: device, w: w}
}

func (c *CapturingDevice) Read(buf []byte) (int, error) {
	n, err := c.FrameDevice.Read(buf)
	if n > 0 {
		c.record(buf[:n])
	}
	return n, err
}

func (c *CapturingDevice) Write(frame []byte) (int, error) {
	c.record(frame)
	return c.FrameDevice.Write(frame)
}

func (c *CapturingDevice) record(frame []byte) {
	_ = c.w.WritePacket(pcap.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
}
