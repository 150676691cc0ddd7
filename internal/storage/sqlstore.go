package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// sqlStore implements Store over database/sql, parameterized by Dialect so
// the same query logic serves both the SQLite and Postgres backends.
type sqlStore struct {
	db      *sql.DB
	dialect Dialect
}

func newSQLStore(db *sql.DB, dialect Dialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: dialect}
	for _, stmt := range schemaStatements(dialect) {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return s, nil
}

func (s *sqlStore) q(query string) string { return rebind(s.dialect, query) }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- Users ---

func (s *sqlStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, email, password_digest, is_admin, created_at FROM users WHERE id = ?`), id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordDigest, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// --- Printers ---

func (s *sqlStore) GetPrinter(ctx context.Context, id string) (*Printer, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, user_id, name, platform, firmware_version, auto_update, update_channel, online, last_connected, daily_message_number, daily_counter_date FROM printers WHERE id = ?`), id)
	return scanPrinter(row)
}

func scanPrinter(row *sql.Row) (*Printer, error) {
	var p Printer
	var userID sql.NullString
	var lastConnected sql.NullTime
	if err := row.Scan(&p.ID, &userID, &p.Name, &p.Platform, &p.FirmwareVersion, &p.AutoUpdate, &p.UpdateChannel, &p.Online, &lastConnected, &p.DailyMessageNumber, &p.DailyCounterDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if userID.Valid {
		p.UserID = &userID.String
	}
	if lastConnected.Valid {
		p.LastConnected = lastConnected.Time
	}
	return &p, nil
}

func (s *sqlStore) UpsertPrinter(ctx context.Context, p *Printer) error {
	query := s.q(`INSERT INTO printers (id, user_id, name, platform, firmware_version, auto_update, update_channel, online, last_connected, daily_message_number, daily_counter_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		` + s.dialect.UpsertConflict([]string{"id"}) + ` user_id = excluded.user_id, name = excluded.name, platform = excluded.platform,
		firmware_version = excluded.firmware_version, auto_update = excluded.auto_update, update_channel = excluded.update_channel,
		online = excluded.online, last_connected = excluded.last_connected, daily_message_number = excluded.daily_message_number,
		daily_counter_date = excluded.daily_counter_date`)
	_, err := s.db.ExecContext(ctx, query, p.ID, p.UserID, p.Name, p.Platform, p.FirmwareVersion, p.AutoUpdate, p.UpdateChannel, p.Online, timeOrNil(p.LastConnected), p.DailyMessageNumber, p.DailyCounterDate)
	return err
}

func (s *sqlStore) SetPrinterOnline(ctx context.Context, id string, online bool, lastConnected time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE printers SET online = ?, last_connected = ? WHERE id = ?`), online, lastConnected, id)
	return err
}

func (s *sqlStore) SetPrinterFirmwareVersion(ctx context.Context, id, version string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE printers SET firmware_version = ? WHERE id = ?`), version, id)
	return err
}

func (s *sqlStore) SetPrinterAutoUpdate(ctx context.Context, id string, autoUpdate bool) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE printers SET auto_update = ? WHERE id = ?`), autoUpdate, id)
	return err
}

// AssignDailyNumber resets-then-increments inside one transaction so the
// read-modify-write is atomic per printer even under concurrent callers
// (spec.md §4.4 step 3, §5 "row-level transactions").
func (s *sqlStore) AssignDailyNumber(ctx context.Context, printerID string, today string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.q(`SELECT daily_message_number, daily_counter_date FROM printers WHERE id = ?`), printerID)
	var current int
	var date string
	if err := row.Scan(&current, &date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	if date != today {
		current = 0
	}
	current++

	if _, err := tx.ExecContext(ctx, s.q(`UPDATE printers SET daily_message_number = ?, daily_counter_date = ? WHERE id = ?`), current, today, printerID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return current, nil
}

// --- Messages ---

func (s *sqlStore) InsertMessageLog(ctx context.Context, m *MessageLog) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO message_log (sender_id, recipient_id, body, daily_number, timestamp) VALUES (?, ?, ?, ?, ?)`),
		m.SenderID, m.RecipientID, m.Body, m.DailyNumber, m.Timestamp)
	return err
}

func (s *sqlStore) InsertMessageCache(ctx context.Context, m *MessageCache) (int64, error) {
	query := s.q(`INSERT INTO message_cache (recipient_id, sender_name, body, daily_number, timestamp, is_delivered) VALUES (?, ?, ?, ?, ?, ?)`)
	res, err := s.db.ExecContext(ctx, query, m.RecipientID, m.SenderName, m.Body, m.DailyNumber, m.Timestamp, m.IsDelivered)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqlStore) ListUndeliveredCache(ctx context.Context, printerID string) ([]*MessageCache, error) {
	query := s.q(fmt.Sprintf(`SELECT id, recipient_id, sender_name, body, daily_number, timestamp, is_delivered FROM message_cache WHERE recipient_id = ? AND is_delivered = %s ORDER BY id ASC`, s.dialect.BoolLiteral(false)))
	rows, err := s.db.QueryContext(ctx, query, printerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MessageCache
	for rows.Next() {
		var m MessageCache
		if err := rows.Scan(&m.ID, &m.RecipientID, &m.SenderName, &m.Body, &m.DailyNumber, &m.Timestamp, &m.IsDelivered); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkCacheDelivered(ctx context.Context, cacheID int64) error {
	query := s.q(fmt.Sprintf(`UPDATE message_cache SET is_delivered = %s WHERE id = ?`, s.dialect.BoolLiteral(true)))
	_, err := s.db.ExecContext(ctx, query, cacheID)
	return err
}

// --- Firmware ---

func (s *sqlStore) GetFirmwareVersion(ctx context.Context, version string, platforms []string) (*FirmwareVersion, error) {
	for _, platform := range platforms {
		row := s.db.QueryRowContext(ctx, s.q(`SELECT version, platform, blob_md5, blob_sha256, blob_size, channel, release_notes, mandatory, min_upgrade_version, download_count, success_count, failure_count, released_at, deprecated_at FROM firmware_versions WHERE version = ? AND platform = ?`), version, platform)
		fw, err := scanFirmware(row)
		if err == nil {
			return fw, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func scanFirmware(row *sql.Row) (*FirmwareVersion, error) {
	var fw FirmwareVersion
	var minUpgrade sql.NullString
	var deprecatedAt sql.NullTime
	var size int64
	if err := row.Scan(&fw.Version, &fw.Platform, &fw.MD5, &fw.SHA256, &size, &fw.Channel, &fw.ReleaseNotes, &fw.Mandatory, &minUpgrade, &fw.DownloadCount, &fw.SuccessCount, &fw.FailureCount, &fw.ReleasedAt, &deprecatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if minUpgrade.Valid {
		fw.MinUpgradeVersion = &minUpgrade.String
	}
	if deprecatedAt.Valid {
		fw.DeprecatedAt = &deprecatedAt.Time
	}
	return &fw, nil
}

func (s *sqlStore) PutFirmwareVersion(ctx context.Context, fw *FirmwareVersion) error {
	query := s.q(`INSERT INTO firmware_versions (version, platform, blob_md5, blob_sha256, blob_size, channel, release_notes, mandatory, min_upgrade_version, released_at, deprecated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		` + s.dialect.UpsertConflict([]string{"version", "platform"}) + ` blob_md5 = excluded.blob_md5, blob_sha256 = excluded.blob_sha256,
		blob_size = excluded.blob_size, channel = excluded.channel, release_notes = excluded.release_notes, mandatory = excluded.mandatory,
		min_upgrade_version = excluded.min_upgrade_version, deprecated_at = excluded.deprecated_at`)
	_, err := s.db.ExecContext(ctx, query, fw.Version, fw.Platform, fw.MD5, fw.SHA256, int64(len(fw.Blob)), fw.Channel, fw.ReleaseNotes, fw.Mandatory, fw.MinUpgradeVersion, fw.ReleasedAt, nullableTime(fw.DeprecatedAt))
	return err
}

func (s *sqlStore) IncrementFirmwareCounter(ctx context.Context, version, platform, counter string) error {
	col, ok := map[string]string{
		"download": "download_count",
		"success":  "success_count",
		"failure":  "failure_count",
	}[counter]
	if !ok {
		return fmt.Errorf("storage: unknown firmware counter %q", counter)
	}
	_, err := s.db.ExecContext(ctx, s.q(fmt.Sprintf(`UPDATE firmware_versions SET %s = %s + 1 WHERE version = ? AND platform = ?`, col, col)), version, platform)
	return err
}

// --- Rollouts ---

func (s *sqlStore) ListActiveRollouts(ctx context.Context, now time.Time) ([]*UpdateRollout, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, target_version, target_all, target_user_ids, target_printer_ids, target_channels, min_version, max_version, rollout_type, rollout_percentage, scheduled_for, status, total_targets, completed_count, failed_count, declined_count, pending_count, created_at FROM update_rollouts WHERE status = 'active'`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UpdateRollout
	for rows.Next() {
		r, err := scanRollout(rows)
		if err != nil {
			return nil, err
		}
		if r.ScheduledFor != nil && r.ScheduledFor.After(now) {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetRollout(ctx context.Context, id string) (*UpdateRollout, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, target_version, target_all, target_user_ids, target_printer_ids, target_channels, min_version, max_version, rollout_type, rollout_percentage, scheduled_for, status, total_targets, completed_count, failed_count, declined_count, pending_count, created_at FROM update_rollouts WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanRollout(rows)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRollout(row scannable) (*UpdateRollout, error) {
	var r UpdateRollout
	var userIDsJSON, printerIDsJSON, channelsJSON string
	var minVersion, maxVersion sql.NullString
	var scheduledFor sql.NullTime
	if err := row.Scan(&r.ID, &r.TargetVersion, &r.TargetAll, &userIDsJSON, &printerIDsJSON, &channelsJSON, &minVersion, &maxVersion, &r.RolloutType, &r.RolloutPercentage, &scheduledFor, &r.Status, &r.TotalTargets, &r.CompletedCount, &r.FailedCount, &r.DeclinedCount, &r.PendingCount, &r.CreatedAt); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(userIDsJSON), &r.TargetUserIDs)
	json.Unmarshal([]byte(printerIDsJSON), &r.TargetPrinterIDs)
	json.Unmarshal([]byte(channelsJSON), &r.TargetChannels)
	if minVersion.Valid {
		r.MinVersion = &minVersion.String
	}
	if maxVersion.Valid {
		r.MaxVersion = &maxVersion.String
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		r.ScheduledFor = &t
	}
	return &r, nil
}

func (s *sqlStore) CreateRollout(ctx context.Context, r *UpdateRollout) error {
	userIDs, err := json.Marshal(r.TargetUserIDs)
	if err != nil {
		return err
	}
	printerIDs, err := json.Marshal(r.TargetPrinterIDs)
	if err != nil {
		return err
	}
	channels, err := json.Marshal(r.TargetChannels)
	if err != nil {
		return err
	}
	query := s.q(`INSERT INTO update_rollouts (id, target_version, target_all, target_user_ids, target_printer_ids, target_channels, min_version, max_version, rollout_type, rollout_percentage, scheduled_for, status, total_targets, completed_count, failed_count, declined_count, pending_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query, r.ID, r.TargetVersion, r.TargetAll, string(userIDs), string(printerIDs), string(channels),
		r.MinVersion, r.MaxVersion, r.RolloutType, r.RolloutPercentage, nullableTime(r.ScheduledFor), r.Status,
		r.TotalTargets, r.CompletedCount, r.FailedCount, r.DeclinedCount, r.PendingCount, r.CreatedAt)
	return err
}

func (s *sqlStore) ActivateScheduledRollouts(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE update_rollouts SET status = 'active' WHERE status = 'pending' AND scheduled_for IS NOT NULL AND scheduled_for <= ?`), now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlStore) AdjustRolloutCounters(ctx context.Context, id string, pending, completed, failed, declined int) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE update_rollouts SET pending_count = pending_count + ?, completed_count = completed_count + ?, failed_count = failed_count + ?, declined_count = declined_count + ? WHERE id = ?`),
		pending, completed, failed, declined, id)
	return err
}

func (s *sqlStore) MaybeCompleteRollout(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE update_rollouts SET status = 'completed' WHERE id = ? AND status = 'active' AND pending_count = 0`), id)
	return err
}

// --- Update history ---

func (s *sqlStore) GetNonTerminalHistory(ctx context.Context, rolloutID, printerID string) (*UpdateHistory, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, rollout_id, printer_id, version, status, last_percent, last_message, started_at, completed_at, error FROM update_history WHERE rollout_id = ? AND printer_id = ? AND status NOT IN ('completed', 'failed', 'declined') ORDER BY started_at DESC LIMIT 1`), rolloutID, printerID)
	return scanHistory(row)
}

func (s *sqlStore) GetLatestNonTerminalHistoryForPrinter(ctx context.Context, printerID string) (*UpdateHistory, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, rollout_id, printer_id, version, status, last_percent, last_message, started_at, completed_at, error FROM update_history WHERE printer_id = ? AND status NOT IN ('completed', 'failed', 'declined') ORDER BY started_at DESC LIMIT 1`), printerID)
	return scanHistory(row)
}

func scanHistory(row *sql.Row) (*UpdateHistory, error) {
	var h UpdateHistory
	var completedAt sql.NullTime
	if err := row.Scan(&h.ID, &h.RolloutID, &h.PrinterID, &h.Version, &h.Status, &h.LastPercent, &h.LastMessage, &h.StartedAt, &completedAt, &h.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if completedAt.Valid {
		h.CompletedAt = &completedAt.Time
	}
	return &h, nil
}

func (s *sqlStore) CreateHistory(ctx context.Context, h *UpdateHistory) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO update_history (id, rollout_id, printer_id, version, status, last_percent, last_message, started_at, completed_at, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		h.ID, h.RolloutID, h.PrinterID, h.Version, h.Status, h.LastPercent, h.LastMessage, h.StartedAt, timeOrNil(zeroIfNil(h.CompletedAt)), h.Error)
	return err
}

func (s *sqlStore) UpdateHistoryProgress(ctx context.Context, id string, percent int, status string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE update_history SET last_percent = ?, status = ? WHERE id = ?`), percent, status, id)
	return err
}

func (s *sqlStore) CompleteHistory(ctx context.Context, id string, version string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE update_history SET status = 'completed', completed_at = ?, version = ? WHERE id = ?`), at, version, id)
	return err
}

func (s *sqlStore) FailHistory(ctx context.Context, id string, errMsg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE update_history SET status = 'failed', completed_at = ?, error = ? WHERE id = ?`), at, errMsg, id)
	return err
}

func (s *sqlStore) DeclineHistory(ctx context.Context, id string, version string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE update_history SET status = 'declined', completed_at = ?, version = ? WHERE id = ?`), at, version, id)
	return err
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func zeroIfNil(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
