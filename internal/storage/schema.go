package storage

import "fmt"

// schemaStatements returns the CREATE TABLE statements for the given
// dialect. Schema migrations beyond "create if missing" are out of core
// scope per spec.md §1; both backends start from the same minimal schema,
// parameterized by Dialect for column types AND boolean literals — Postgres
// rejects an integer literal against a BOOLEAN column, in a DEFAULT clause
// or anywhere else, so every bool default goes through d.BoolLiteral.
func schemaStatements(d Dialect) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
				id %s PRIMARY KEY,
				email %s NOT NULL UNIQUE,
				password_digest %s NOT NULL,
				is_admin %s NOT NULL DEFAULT %s,
				created_at %s NOT NULL
			)`, d.TextType(), d.TextType(), d.TextType(), d.BoolType(), d.BoolLiteral(false), d.TimestampType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS printers (
				id %s PRIMARY KEY,
				user_id %s,
				name %s NOT NULL DEFAULT '',
				platform %s NOT NULL,
				firmware_version %s NOT NULL DEFAULT '0.0.0',
				auto_update %s NOT NULL DEFAULT %s,
				update_channel %s NOT NULL DEFAULT 'stable',
				online %s NOT NULL DEFAULT %s,
				last_connected %s,
				daily_message_number INTEGER NOT NULL DEFAULT 0,
				daily_counter_date %s NOT NULL DEFAULT ''
			)`, d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.BoolType(), d.BoolLiteral(true), d.TextType(), d.BoolType(), d.BoolLiteral(false), d.TimestampType(), d.TextType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS message_log (
				id %s,
				sender_id %s NOT NULL,
				recipient_id %s NOT NULL,
				body %s NOT NULL,
				daily_number INTEGER NOT NULL,
				timestamp %s NOT NULL
			)`, d.AutoIncrement(), d.TextType(), d.TextType(), d.TextType(), d.TimestampType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS message_cache (
				id %s,
				recipient_id %s NOT NULL,
				sender_name %s NOT NULL,
				body %s NOT NULL,
				daily_number INTEGER NOT NULL,
				timestamp %s NOT NULL,
				is_delivered %s NOT NULL DEFAULT %s
			)`, d.AutoIncrement(), d.TextType(), d.TextType(), d.TextType(), d.TimestampType(), d.BoolType(), d.BoolLiteral(false)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS firmware_versions (
				version %s NOT NULL,
				platform %s NOT NULL,
				blob_md5 %s NOT NULL,
				blob_sha256 %s NOT NULL,
				blob_size INTEGER NOT NULL DEFAULT 0,
				channel %s NOT NULL DEFAULT 'stable',
				release_notes %s NOT NULL DEFAULT '',
				mandatory %s NOT NULL DEFAULT %s,
				min_upgrade_version %s,
				download_count INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				released_at %s NOT NULL,
				deprecated_at %s,
				PRIMARY KEY (version, platform)
			)`, d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.BoolType(), d.BoolLiteral(false), d.TextType(), d.TimestampType(), d.TimestampType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS update_rollouts (
				id %s PRIMARY KEY,
				target_version %s NOT NULL,
				target_all %s NOT NULL DEFAULT %s,
				target_user_ids %s NOT NULL DEFAULT '[]',
				target_printer_ids %s NOT NULL DEFAULT '[]',
				target_channels %s NOT NULL DEFAULT '[]',
				min_version %s,
				max_version %s,
				rollout_type %s NOT NULL,
				rollout_percentage INTEGER NOT NULL DEFAULT 0,
				scheduled_for %s,
				status %s NOT NULL DEFAULT 'pending',
				total_targets INTEGER NOT NULL DEFAULT 0,
				completed_count INTEGER NOT NULL DEFAULT 0,
				failed_count INTEGER NOT NULL DEFAULT 0,
				declined_count INTEGER NOT NULL DEFAULT 0,
				pending_count INTEGER NOT NULL DEFAULT 0,
				created_at %s NOT NULL
			)`, d.TextType(), d.TextType(), d.BoolType(), d.BoolLiteral(false), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TimestampType(), d.TextType(), d.TimestampType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS update_history (
				id %s PRIMARY KEY,
				rollout_id %s NOT NULL,
				printer_id %s NOT NULL,
				version %s NOT NULL,
				status %s NOT NULL DEFAULT 'pending',
				last_percent INTEGER NOT NULL DEFAULT 0,
				last_message %s NOT NULL DEFAULT '',
				started_at %s NOT NULL,
				completed_at %s,
				error %s NOT NULL DEFAULT ''
			)`, d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TextType(), d.TimestampType(), d.TimestampType(), d.TextType()),

		`CREATE INDEX IF NOT EXISTS idx_message_cache_recipient ON message_cache (recipient_id, is_delivered)`,
		`CREATE INDEX IF NOT EXISTS idx_update_history_printer ON update_history (printer_id, rollout_id)`,
		`CREATE INDEX IF NOT EXISTS idx_update_rollouts_status ON update_rollouts (status)`,
	}
}
