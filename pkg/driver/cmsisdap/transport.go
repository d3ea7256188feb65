package cmsisdap

import (
	"fmt"

	"github.com/google/gousb"
)

const defaultPacketSize = 64

// transport is the request/response channel to the probe. Split out so
// the driver logic is testable against a loopback fake.
type transport interface {
	writeRead(cmd []byte) ([]byte, error)
	packetLen() int
	Close() error
}

// usbTransport talks to a CMSIS-DAP probe over its vendor-specific bulk
// endpoints. Commands and responses are fixed-size packets; short
// commands are zero-padded.
type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
}

func openUSB(vid, pid uint16) (*usbTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usb open: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("probe %04x:%04x not found", vid, pid)
	}
	// Detach a bound kernel HID driver where the platform supports it.
	_ = dev.SetAutoDetach(true)

	t := &usbTransport{ctx: ctx, dev: dev, packetSize: defaultPacketSize}
	if err := t.claim(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return t, nil
}

// claim finds the vendor-class interface and its bulk endpoint pair.
func (t *usbTransport) claim() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("usb config: %w", err)
	}

	num := 0
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = intf.Number
			break
		}
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("usb claim interface %d: %w", num, err)
	}
	t.intf = intf

	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if t.epOut == nil {
				t.epOut, err = intf.OutEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionIn:
			if t.epIn == nil {
				t.epIn, err = intf.InEndpoint(ep.Number)
				t.packetSize = ep.MaxPacketSize
			}
		}
		if err != nil {
			intf.Close()
			return fmt.Errorf("usb endpoint: %w", err)
		}
	}
	if t.epOut == nil || t.epIn == nil {
		intf.Close()
		return fmt.Errorf("probe exposes no bulk endpoint pair")
	}
	return nil
}

func (t *usbTransport) writeRead(cmd []byte) ([]byte, error) {
	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.Write(packet); err != nil {
		return nil, fmt.Errorf("usb write: %w", err)
	}

	resp := make([]byte, t.packetSize)
	n, err := t.epIn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("usb read: %w", err)
	}
	return resp[:n], nil
}

func (t *usbTransport) packetLen() int { return t.packetSize }

func (t *usbTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
