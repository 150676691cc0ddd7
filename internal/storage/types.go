// Package storage defines the PaperMinder entity model (spec.md §3) and the
// Store interface the core engine treats as an external collaborator. Two
// concrete backends are provided: SQLite (default, zero-dependency) and
// PostgreSQL (production fleets), sharing one dialect-parameterized SQL
// layer (dialect.go).
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("storage: not found")

// Channel is a firmware/printer release track.
type Channel string

const (
	ChannelStable Channel = "stable"
	ChannelBeta   Channel = "beta"
	ChannelCanary Channel = "canary"
)

// User — spec.md §3.
type User struct {
	ID             string
	Email          string
	PasswordDigest string
	IsAdmin        bool
	CreatedAt      time.Time
}

// Printer — spec.md §3. DailyCounterDate is a UTC calendar date stored as
// "2006-01-02".
type Printer struct {
	ID                 string
	UserID             *string
	Name               string
	Platform           string
	FirmwareVersion    string
	AutoUpdate         bool
	UpdateChannel      Channel
	Online             bool
	LastConnected      time.Time
	DailyMessageNumber int
	DailyCounterDate   string
}

// MessageLog — immutable historical record of a delivered-or-cached message.
type MessageLog struct {
	ID          int64
	SenderID    string
	RecipientID string
	Body        string
	DailyNumber int
	Timestamp   time.Time
}

// MessageCache — a pending delivery slot for an offline printer.
type MessageCache struct {
	ID          int64
	RecipientID string
	SenderName  string
	Body        string
	DailyNumber int
	Timestamp   time.Time
	IsDelivered bool
}

// FirmwareVersion — keyed by (Version, Platform).
type FirmwareVersion struct {
	Version           string
	Platform          string
	Blob              []byte
	MD5               string
	SHA256            string
	Channel           Channel
	ReleaseNotes      string
	Mandatory         bool
	MinUpgradeVersion *string
	DownloadCount     int64
	SuccessCount      int64
	FailureCount      int64
	ReleasedAt        time.Time
	DeprecatedAt      *time.Time
}

// RolloutType values.
const (
	RolloutImmediate = "immediate"
	RolloutGradual   = "gradual"
	RolloutScheduled = "scheduled"
)

// RolloutStatus values — the DAG in spec.md §4.9.
const (
	RolloutPending   = "pending"
	RolloutActive    = "active"
	RolloutPaused    = "paused"
	RolloutCompleted = "completed"
	RolloutCancelled = "cancelled"
)

// UpdateRollout — a firmware rollout campaign.
type UpdateRollout struct {
	ID                string
	TargetVersion     string
	TargetAll         bool
	TargetUserIDs     []string
	TargetPrinterIDs  []string
	TargetChannels    []Channel
	MinVersion        *string
	MaxVersion        *string
	RolloutType       string
	RolloutPercentage int
	ScheduledFor      *time.Time
	Status            string
	TotalTargets      int
	CompletedCount    int
	FailedCount       int
	DeclinedCount     int
	PendingCount      int
	CreatedAt         time.Time
}

// UpdateHistoryStatus values — spec.md §4.9.
const (
	HistoryPending     = "pending"
	HistoryDownloading = "downloading"
	HistoryCompleted   = "completed"
	HistoryFailed      = "failed"
	HistoryDeclined    = "declined"
)

// IsTerminal reports whether a history status is absorbing.
func IsTerminal(status string) bool {
	return status == HistoryCompleted || status == HistoryFailed || status == HistoryDeclined
}

// UpdateHistory — one row per (rollout, printer, attempted version).
type UpdateHistory struct {
	ID          string
	RolloutID   string
	PrinterID   string
	Version     string
	Status      string
	LastPercent int
	LastMessage string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Store is the persistence collaborator the core engine depends on (spec.md
// §1, §6: storage engine selection is out of core scope, but the interface
// shape is not — every core component talks only to this).
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)

	GetPrinter(ctx context.Context, id string) (*Printer, error)
	UpsertPrinter(ctx context.Context, p *Printer) error
	SetPrinterOnline(ctx context.Context, id string, online bool, lastConnected time.Time) error
	SetPrinterFirmwareVersion(ctx context.Context, id, version string) error
	SetPrinterAutoUpdate(ctx context.Context, id string, autoUpdate bool) error

	// AssignDailyNumber atomically bumps a printer's daily counter, resetting
	// it to 0 first if the stored counter date is not `today` (spec.md §4.4
	// step 3). Returns the newly assigned number.
	AssignDailyNumber(ctx context.Context, printerID string, today string) (int, error)

	InsertMessageLog(ctx context.Context, m *MessageLog) error

	InsertMessageCache(ctx context.Context, m *MessageCache) (int64, error)
	ListUndeliveredCache(ctx context.Context, printerID string) ([]*MessageCache, error)
	MarkCacheDelivered(ctx context.Context, cacheID int64) error

	// GetFirmwareVersion looks up a binary across the accepted platform
	// spellings (spec.md §4.6 step 6); platforms is ordered, most-canonical first.
	GetFirmwareVersion(ctx context.Context, version string, platforms []string) (*FirmwareVersion, error)
	IncrementFirmwareCounter(ctx context.Context, version, platform, counter string) error
	// PutFirmwareVersion persists a binary's metadata row, written by the
	// firmware upload HTTP collaborator (spec.md §1, §6: out of core scope,
	// but the Store's write surface is not).
	PutFirmwareVersion(ctx context.Context, fw *FirmwareVersion) error

	ListActiveRollouts(ctx context.Context, now time.Time) ([]*UpdateRollout, error)
	GetRollout(ctx context.Context, id string) (*UpdateRollout, error)
	// CreateRollout persists a new rollout campaign, written by the rollout
	// CRUD HTTP collaborator (spec.md §6).
	CreateRollout(ctx context.Context, r *UpdateRollout) error
	ActivateScheduledRollouts(ctx context.Context, now time.Time) (int, error)
	AdjustRolloutCounters(ctx context.Context, id string, pending, completed, failed, declined int) error
	MaybeCompleteRollout(ctx context.Context, id string) error

	GetNonTerminalHistory(ctx context.Context, rolloutID, printerID string) (*UpdateHistory, error)
	GetLatestNonTerminalHistoryForPrinter(ctx context.Context, printerID string) (*UpdateHistory, error)
	CreateHistory(ctx context.Context, h *UpdateHistory) error
	UpdateHistoryProgress(ctx context.Context, id string, percent int, status string) error
	CompleteHistory(ctx context.Context, id string, version string, at time.Time) error
	FailHistory(ctx context.Context, id string, errMsg string, at time.Time) error
	DeclineHistory(ctx context.Context, id string, version string, at time.Time) error

	// Ping verifies the backing database connection is reachable, used by
	// the /health endpoint (SPEC_FULL.md ambient stack).
	Ping(ctx context.Context) error

	Close() error
}
