package store

import (
	"context"
	"fmt"
	"time"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ImportLog replaces the stored copy of the log at logPath with txs, keyed
// by their 1-based position. Returns the number of rows written.
func (s *Store) ImportLog(ctx context.Context, logPath string, txs []txlog.Transaction) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import log: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE log_path = ?`, logPath); err != nil {
		return 0, fmt.Errorf("import log: clear previous import: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions
		(log_path, seq, code, flags, status, pid, uid, timestamp, interface, data_size, reply_size, data, reply)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("import log: prepare: %w", err)
	}
	defer stmt.Close()

	for i, rec := range txs {
		_, err := stmt.ExecContext(ctx,
			logPath,
			i+1,
			rec.Code,
			rec.Flags,
			int32(rec.Status),
			rec.PID,
			rec.UID,
			rec.Timestamp.UnixNano(),
			rec.Interface,
			int64(rec.DataSize),
			int64(rec.ReplySize),
			rec.Data,
			rec.Reply,
		)
		if err != nil {
			return 0, fmt.Errorf("import log: record %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import log: commit: %w", err)
	}
	return len(txs), nil
}

// ReadTransactions returns the stored records of logPath in log order.
func (s *Store) ReadTransactions(ctx context.Context, logPath string) ([]txlog.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, flags, status, pid, uid, timestamp, interface, data_size, reply_size, data, reply
		FROM transactions
		WHERE log_path = ?
		ORDER BY seq ASC
	`, logPath)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []txlog.Transaction{}
	for rows.Next() {
		var (
			rec                 txlog.Transaction
			status              int32
			ts                  int64
			dataSize, replySize int64
		)
		err := rows.Scan(
			&rec.Code,
			&rec.Flags,
			&status,
			&rec.PID,
			&rec.UID,
			&ts,
			&rec.Interface,
			&dataSize,
			&replySize,
			&rec.Data,
			&rec.Reply,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Status = txlog.Status(status)
		rec.Timestamp = time.Unix(0, ts).UTC()
		rec.DataSize = uint64(dataSize)
		rec.ReplySize = uint64(replySize)
		txs = append(txs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// LogPaths returns every imported log path, sorted.
func (s *Store) LogPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT log_path FROM transactions ORDER BY log_path COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query log paths: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan log path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
