package canbus

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// candleLight (gs_usb) adapters expose a vendor-specific interface with one
// bulk endpoint per direction and a handful of control requests. Frames
// cross the wire as fixed 20-byte little-endian records.
const (
	gsUSBVID = 0x1d50
	gsUSBPID = 0x606f

	gsBreqHostFormat = 0
	gsBreqBittiming  = 1
	gsBreqMode       = 2

	gsCanModeReset = 0
	gsCanModeStart = 1

	// Magic the host sends so the device can detect byte order.
	gsHostMagic = 0x0000beef

	// echo_id in received records: anything else is a loopback of our own
	// transmission.
	gsEchoIDRx = 0xffffffff

	gsFrameLen = 20
)

// GSUSB is a Transport backed by a candleLight-compatible USB CAN adapter.
type GSUSB struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	done   func()
	intf   *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	rxID   uint32
	frames chan Frame
	stop   chan struct{}
}

// bittiming holds the gs_usb bit timing register values for the common
// 48 MHz core clock found on candleLight hardware, at an 87.5% sample point.
type bittiming struct {
	propSeg, phaseSeg1, phaseSeg2, sjw, brp uint32
}

var bitrateTimings = map[int]bittiming{
	125000:  {1, 12, 2, 1, 24},
	250000:  {1, 12, 2, 1, 12},
	500000:  {1, 12, 2, 1, 6},
	1000000: {1, 12, 2, 1, 3},
}

// NewGSUSB opens the first candleLight adapter on the USB bus, configures
// the requested bitrate and starts the receive listener.
func NewGSUSB(bitrate int, rxID uint32) (*GSUSB, error) {
	timing, ok := bitrateTimings[bitrate]
	if !ok {
		return nil, fmt.Errorf("unsupported bitrate %d", bitrate)
	}

	ctx, err := newUSBContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize USB: %w", err)
	}

	dev, err := ctx.OpenDeviceWithVIDPID(gsUSBVID, gsUSBPID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("could not open adapter: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("no candleLight adapter found")
	}

	g := &GSUSB{
		ctx:    ctx,
		dev:    dev,
		rxID:   rxID,
		frames: make(chan Frame, queueDepth),
		stop:   make(chan struct{}),
	}
	if err := g.prepare(timing); err != nil {
		g.Close()
		return nil, err
	}
	go g.listen()
	return g, nil
}

// newUSBContext initializes libusb on a separate goroutine so that an
// initialization panic (e.g. missing libusb) turns into an error.
func newUSBContext() (*gousb.Context, error) {
	resC := make(chan *gousb.Context)
	errC := make(chan error)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- fmt.Errorf("%v", r)
			}
		}()

		resC <- gousb.NewContext()
	}()

	select {
	case err := <-errC:
		return nil, err
	case res := <-resC:
		return res, nil
	}
}

func (g *GSUSB) prepare(timing bittiming) error {
	if err := g.dev.SetAutoDetach(true); err != nil {
		return err
	}
	intf, done, err := g.dev.DefaultInterface()
	if err != nil {
		return fmt.Errorf("could not claim interface: %w", err)
	}
	g.intf = intf
	g.done = done

	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			g.in, err = intf.InEndpoint(ep.Number)
		case gousb.EndpointDirectionOut:
			g.out, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			return err
		}
	}
	if g.in == nil || g.out == nil {
		return fmt.Errorf("did not find both IN and OUT endpoint on adapter interface")
	}

	// Vendor OUT control request targeted at the interface.
	const rType = 0x41

	magic := make([]byte, 4)
	binary.LittleEndian.PutUint32(magic, gsHostMagic)
	if _, err := g.dev.Control(rType, gsBreqHostFormat, 1, 0, magic); err != nil {
		return fmt.Errorf("host format: %w", err)
	}

	bt := make([]byte, 20)
	binary.LittleEndian.PutUint32(bt[0:], timing.propSeg)
	binary.LittleEndian.PutUint32(bt[4:], timing.phaseSeg1)
	binary.LittleEndian.PutUint32(bt[8:], timing.phaseSeg2)
	binary.LittleEndian.PutUint32(bt[12:], timing.sjw)
	binary.LittleEndian.PutUint32(bt[16:], timing.brp)
	if _, err := g.dev.Control(rType, gsBreqBittiming, 0, 0, bt); err != nil {
		return fmt.Errorf("bittiming: %w", err)
	}

	mode := make([]byte, 8)
	binary.LittleEndian.PutUint32(mode[0:], gsCanModeStart)
	if _, err := g.dev.Control(rType, gsBreqMode, 0, 0, mode); err != nil {
		return fmt.Errorf("start mode: %w", err)
	}
	return nil
}

func (g *GSUSB) listen() {
	buf := make([]byte, 64)
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		n, err := g.in.Read(buf)
		if err != nil {
			// Device gone or endpoint closed; Receive will time out.
			return
		}
		for off := 0; off+gsFrameLen <= n; off += gsFrameLen {
			frame, ok := parseGSRecord(buf[off:off+gsFrameLen], g.rxID)
			if !ok {
				continue
			}
			select {
			case g.frames <- frame:
			default:
			}
		}
	}
}

// parseGSRecord decodes one 20-byte gs_usb host record, returning false for
// transmit echoes and frames not addressed to rxID.
func parseGSRecord(rec []byte, rxID uint32) (Frame, bool) {
	echoID := binary.LittleEndian.Uint32(rec[0:4])
	if echoID != gsEchoIDRx {
		return Frame{}, false
	}
	id := binary.LittleEndian.Uint32(rec[4:8]) & idMask
	if id != rxID {
		return Frame{}, false
	}
	f := Frame{ID: id}
	copy(f.Data[:], rec[12:20])
	return f, true
}

// marshalGSRecord encodes a frame into the 20-byte gs_usb host record.
func marshalGSRecord(frame Frame) []byte {
	rec := make([]byte, gsFrameLen)
	binary.LittleEndian.PutUint32(rec[0:4], 0) // echo_id
	binary.LittleEndian.PutUint32(rec[4:8], frame.ID)
	rec[8] = 8 // can_dlc
	copy(rec[12:20], frame.Data[:])
	return rec
}

func (g *GSUSB) Send(frame Frame) error {
	if _, err := g.out.Write(marshalGSRecord(frame)); err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	return nil
}

func (g *GSUSB) Receive(timeout time.Duration) (*Frame, error) {
	select {
	case f := <-g.frames:
		return &f, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (g *GSUSB) Close() error {
	select {
	case <-g.stop:
	default:
		close(g.stop)
	}
	if g.dev != nil {
		const rType = 0x41
		mode := make([]byte, 8)
		binary.LittleEndian.PutUint32(mode[0:], gsCanModeReset)
		g.dev.Control(rType, gsBreqMode, 0, 0, mode)
	}
	if g.done != nil {
		g.done()
		g.done = nil
	}
	if g.dev != nil {
		g.dev.Close()
		g.dev = nil
	}
	if g.ctx != nil {
		if err := g.ctx.Close(); err != nil {
			return fmt.Errorf("when closing USB context: %w", err)
		}
		g.ctx = nil
	}
	return nil
}
