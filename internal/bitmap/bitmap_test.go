package bitmap

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"paperminder/internal/apierr"
	"paperminder/internal/registry"
)

type noopSession struct{}

func (noopSession) WriteRaw(b []byte, timeout time.Duration) error { return nil }
func (noopSession) RemoteAddr() string                             { return "test" }

func payload(n int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, n))
}

func TestDispatch_RejectsWidthNotMultipleOf8(t *testing.T) {
	reg := registry.New(nil, nil, time.Second)
	d := New(reg)
	err := d.Dispatch(Request{PrinterID: "p1", Width: 9, Height: 8, Data: payload(9)})
	if !errors.Is(err, apierr.ErrInvalidBitmap) {
		t.Errorf("expected ErrInvalidBitmap, got %v", err)
	}
}

func TestDispatch_RejectsSizeMismatch(t *testing.T) {
	reg := registry.New(nil, nil, time.Second)
	d := New(reg)
	err := d.Dispatch(Request{PrinterID: "p1", Width: 8, Height: 8, Data: payload(2)})
	if !errors.Is(err, apierr.ErrInvalidBitmap) {
		t.Errorf("expected ErrInvalidBitmap, got %v", err)
	}
}

func TestDispatch_RejectsOverCap(t *testing.T) {
	reg := registry.New(nil, nil, time.Second)
	d := New(reg)
	width := 576
	height := (MaxPayloadBytes+8)*8/width + 1
	err := d.Dispatch(Request{PrinterID: "p1", Width: width, Height: height, Data: payload((width * height) / 8)})
	if !errors.Is(err, apierr.ErrInvalidBitmap) {
		t.Errorf("expected ErrInvalidBitmap for over-cap payload, got %v", err)
	}
}

func TestDispatch_RejectsWhenPrinterOffline(t *testing.T) {
	reg := registry.New(nil, nil, time.Second)
	d := New(reg)
	err := d.Dispatch(Request{PrinterID: "p1", Width: 8, Height: 8, Data: payload(8)})
	if !errors.Is(err, apierr.ErrRecipientNotConnected) {
		t.Errorf("expected ErrRecipientNotConnected, got %v", err)
	}
}

func TestDispatch_DeliversToConnectedPrinter(t *testing.T) {
	reg := registry.New(nil, nil, time.Second)
	reg.Attach("p1", noopSession{})
	d := New(reg)
	err := d.Dispatch(Request{PrinterID: "p1", Width: 384, Height: 8, Data: payload(384)})
	if err != nil {
		t.Errorf("expected successful dispatch, got %v", err)
	}
}
