package wsconn

import (
	"encoding/json"
	"fmt"

	"paperminder/internal/apierr"
)

// Frame kinds, spec.md §6.
const (
	KindSubscription     = "subscription"
	KindMessage          = "message"
	KindFirmwareProgress = "firmware_progress"
	KindFirmwareComplete = "firmware_complete"
	KindFirmwareFailed   = "firmware_failed"
	KindFirmwareDeclined = "firmware_declined"
	KindBitmapPrinting   = "bitmap_printing"
	KindBitmapError      = "bitmap_error"

	KindOutbound       = "outbound"
	KindStatus         = "status"
	KindFirmwareUpdate = "firmware_update"
	KindPrintBitmap    = "print_bitmap"
)

// Envelope is the minimal shape needed to read the discriminator before
// unmarshaling the variant-specific payload.
type Envelope struct {
	Kind string          `json:"kind"`
	Raw  json.RawMessage `json:"-"`
}

// ParseEnvelope reads the "kind" field and keeps the raw bytes so the caller
// can unmarshal into the matching variant struct.
func ParseEnvelope(b []byte) (Envelope, error) {
	var peek struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(b, &peek); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", apierr.ErrMalformedFrame, err)
	}
	if peek.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", apierr.ErrMalformedFrame)
	}
	return Envelope{Kind: peek.Kind, Raw: b}, nil
}

// SubscriptionFrame — printer handshake (client→server).
type SubscriptionFrame struct {
	Kind            string `json:"kind"`
	PrinterName     string `json:"printer_name"`
	PrinterID       string `json:"printer_id"`
	Platform        string `json:"platform"`
	FirmwareVersion string `json:"firmware_version"`
	AutoUpdate      bool   `json:"auto_update"`
	UpdateChannel   string `json:"update_channel"`
	APIKey          string `json:"api_key,omitempty"` // legacy, ignored
}

// MessageFrame — text message addressed to a printer (client→server).
type MessageFrame struct {
	Kind        string `json:"kind"`
	RecipientID string `json:"recipient_id"`
	SenderName  string `json:"sender_name"`
	Message     string `json:"message"`
}

// FirmwareProgressFrame (client→server).
type FirmwareProgressFrame struct {
	Kind    string `json:"kind"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

// FirmwareCompleteFrame (client→server).
type FirmwareCompleteFrame struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

// FirmwareFailedFrame (client→server).
type FirmwareFailedFrame struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// FirmwareDeclinedFrame (client→server).
type FirmwareDeclinedFrame struct {
	Kind       string `json:"kind"`
	Version    string `json:"version"`
	AutoUpdate bool   `json:"auto_update"`
}

// BitmapPrintingFrame — ack (client→server).
type BitmapPrintingFrame struct {
	Kind   string `json:"kind"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// BitmapErrorFrame (client→server).
type BitmapErrorFrame struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// OutboundFrame — delivered text message (server→client).
type OutboundFrame struct {
	Kind        string `json:"kind"`
	SenderName  string `json:"sender_name"`
	Message     string `json:"message"`
	DailyNumber int    `json:"daily_number"`
	Timestamp   string `json:"timestamp"`
}

// StatusLevel values for StatusFrame.
const (
	StatusInfo  = "info"
	StatusError = "error"
)

// StatusFrame — validation failures and informational notices (server→client).
type StatusFrame struct {
	Kind    string `json:"kind"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// FirmwareUpdateFrame — firmware push (server→client).
type FirmwareUpdateFrame struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
	URL     string `json:"url"`
	MD5     string `json:"md5"`
}

// PrintBitmapFrame — bitmap dispatch (server→client).
type PrintBitmapFrame struct {
	Kind    string `json:"kind"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Data    string `json:"data"`
	Caption string `json:"caption,omitempty"`
}

// Marshal is a small helper ensuring the "kind" discriminator is always
// attached, even if the caller forgot to set it on the struct literal.
func Marshal(kind string, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	m["kind"] = kind
	return json.Marshal(m)
}
