// Package store provides SQLite-backed history for replay runs and exported
// recordings.
//
// Tables:
//   - replay_runs: one row per replay of a log against a service
//   - replay_results: per-record verdicts of a run, keyed by (run_id, seq)
//   - transactions: records copied out of a log file, keyed by (log_path, seq)
//
// Rows are ordered by seq, the 1-based position of the record in its log,
// never by timestamp.
//
// Connection settings travel in the driver DSN so every connection gets
// them: WAL journaling, synchronous=NORMAL, a 5 second busy timeout, foreign
// keys, and BEGIN IMMEDIATE for write transactions. The schema version lives
// in user_version; a database from a newer build is refused.
package store
