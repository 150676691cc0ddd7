// Package bitmap implements the Bitmap Dispatcher (spec.md §4.5): validates
// a server-originated print_bitmap request and forwards it to the target
// printer's session.
package bitmap

import (
	"encoding/base64"
	"fmt"

	"paperminder/internal/apierr"
	"paperminder/internal/registry"
	"paperminder/internal/wsconn"
)

// MaxPayloadBytes is the base64-decoded payload cap (spec.md §4.5, §6).
const MaxPayloadBytes = 50 * 1024

// Dispatcher forwards validated bitmap frames through the Registry.
type Dispatcher struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Request is the HTTP collaborator's already-encoded bitmap payload.
type Request struct {
	PrinterID string
	Width     int
	Height    int
	Data      string // base64
	Caption   string
}

// Dispatch validates req and broadcasts it to PrinterID. It never caches on
// failure (spec.md §4.5, §9 open question): a disconnected printer or an
// invalid frame is surfaced to the caller.
func (d *Dispatcher) Dispatch(req Request) error {
	if req.Width <= 0 || req.Width%8 != 0 {
		return fmt.Errorf("%w: width %d is not a multiple of 8", apierr.ErrInvalidBitmap, req.Width)
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return fmt.Errorf("%w: invalid base64 payload: %v", apierr.ErrInvalidBitmap, err)
	}
	if len(decoded) > MaxPayloadBytes {
		return fmt.Errorf("%w: payload %d bytes exceeds %d byte cap", apierr.ErrInvalidBitmap, len(decoded), MaxPayloadBytes)
	}
	expected := (req.Width * req.Height) / 8
	if len(decoded) != expected {
		return fmt.Errorf("%w: payload %d bytes, expected %d for %dx%d", apierr.ErrInvalidBitmap, len(decoded), expected, req.Width, req.Height)
	}

	if !d.reg.IsConnected(req.PrinterID) {
		return fmt.Errorf("%w: printer %s is not connected", apierr.ErrRecipientNotConnected, req.PrinterID)
	}

	frame := wsconn.PrintBitmapFrame{
		Kind:    wsconn.KindPrintBitmap,
		Width:   req.Width,
		Height:  req.Height,
		Data:    req.Data,
		Caption: req.Caption,
	}
	payload, err := wsconn.Marshal(wsconn.KindPrintBitmap, frame)
	if err != nil {
		return err
	}

	if d.reg.Broadcast(req.PrinterID, payload) == 0 {
		return fmt.Errorf("%w: write to printer %s failed", apierr.ErrSendFailed, req.PrinterID)
	}
	return nil
}
