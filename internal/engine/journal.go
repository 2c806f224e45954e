package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is an SQLite record of in-flight merge sequences. Every scratch
// name is recorded before the scratch is created and cleared once its
// sequence finished, so a crash leaves behind exactly the entries Recover
// needs to repair.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// JournalEntry is one pending scratch.
type JournalEntry struct {
	Scratch  string
	Original string
	Mode     LinkMode
	Created  time.Time
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pending (
			scratch  TEXT PRIMARY KEY,
			original TEXT NOT NULL,
			mode     INTEGER NOT NULL,
			created  INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Record notes that scratch is about to hold original's content.
func (j *Journal) Record(scratch, original string, mode LinkMode) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(
		"INSERT OR REPLACE INTO pending (scratch, original, mode, created) VALUES (?, ?, ?, ?)",
		scratch, original, int(mode), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal %s: %w", scratch, err)
	}
	return nil
}

// Clear drops the entry for scratch.
func (j *Journal) Clear(scratch string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.db.Exec("DELETE FROM pending WHERE scratch = ?", scratch); err != nil {
		return fmt.Errorf("clear journal entry %s: %w", scratch, err)
	}
	return nil
}

// Pending lists every entry, oldest first.
func (j *Journal) Pending() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query("SELECT scratch, original, mode, created FROM pending ORDER BY created, scratch")
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var mode int
		var created int64
		if err := rows.Scan(&e.Scratch, &e.Original, &mode, &created); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.Mode = LinkMode(mode)
		e.Created = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the journal database path.
func (j *Journal) Path() string {
	return j.path
}

// RecoverAction is what Recover did, or would do, with one entry.
type RecoverAction int

const (
	// Restored: the original path was missing and the scratch was renamed
	// back to it.
	Restored RecoverAction = iota + 1
	// Removed: both paths existed and the redundant scratch was removed.
	Removed
	// Cleared: the scratch no longer existed; only the entry was dropped.
	Cleared
	// Failed: the repair itself failed; the entry is kept.
	Failed
)

var recoverActionNames = [...]string{
	Restored: "restored",
	Removed:  "removed",
	Cleared:  "cleared",
	Failed:   "failed",
}

func (a RecoverAction) String() string {
	if a > 0 && int(a) < len(recoverActionNames) {
		return recoverActionNames[a]
	}
	return "unknown"
}

// RecoverOutcome reports one journal entry handled by Recover.
type RecoverOutcome struct {
	Entry  JournalEntry
	Action RecoverAction
	Err    error
}

// Recover repairs the filesystem from the journal's pending entries. With
// dryRun set it only reports what it would do and keeps the journal intact.
func Recover(ctx context.Context, j *Journal, dryRun bool, log *slog.Logger) ([]RecoverOutcome, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := j.Pending()
	if err != nil {
		return nil, err
	}

	var out []RecoverOutcome
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o := recoverEntry(e, dryRun)
		if o.Action == Failed {
			log.Error("recovery failed", "scratch", e.Scratch, "original", e.Original, "error", o.Err)
		} else {
			log.Info("recovered", "action", o.Action.String(), "scratch", e.Scratch,
				"original", e.Original, "dry_run", dryRun)
			if !dryRun {
				if err := j.Clear(e.Scratch); err != nil {
					return out, err
				}
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func recoverEntry(e JournalEntry, dryRun bool) RecoverOutcome {
	o := RecoverOutcome{Entry: e}

	if _, err := os.Lstat(e.Scratch); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			o.Action, o.Err = Failed, err
			return o
		}
		o.Action = Cleared
		return o
	}

	_, err := os.Lstat(e.Original)
	switch {
	case errors.Is(err, os.ErrNotExist):
		o.Action = Restored
		if !dryRun {
			if err := os.Rename(e.Scratch, e.Original); err != nil {
				o.Action, o.Err = Failed, err
			}
		}
	case err != nil:
		o.Action, o.Err = Failed, err
	default:
		o.Action = Removed
		if !dryRun {
			if err := os.Remove(e.Scratch); err != nil {
				o.Action, o.Err = Failed, err
			}
		}
	}
	return o
}
