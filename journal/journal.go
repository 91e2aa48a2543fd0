// Package journal records every generation request of a run in sqlite
// database shared by all books of the output directory.
package journal

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// FileName of the journal database inside output directory.
const FileName = "journal.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	book           TEXT NOT NULL DEFAULT '',
	stage          TEXT NOT NULL,
	chapter        INTEGER NOT NULL DEFAULT 0,
	attempts       INTEGER NOT NULL DEFAULT 0,
	prompt_chars   INTEGER NOT NULL DEFAULT 0,
	response_chars INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS generations_book ON generations(book, id);
CREATE INDEX IF NOT EXISTS generations_run ON generations(run_id);
`

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry describes a single generation request.
type Entry struct {
	RunID         string
	Book          string
	Stage         string
	Chapter       int
	Attempts      int
	PromptChars   int
	ResponseChars int
	Duration      time.Duration
	Status        string
	Error         string
	Created       time.Time
}

// Journal is not safe for concurrent use. All methods may be called on nil
// Journal which means journaling is off.
type Journal struct {
	conn *sqlite.Conn
}

func Open(path string) (*Journal, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open journal (%s): %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("prepare journal schema: %w", err)
	}
	return &Journal{conn: conn}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.conn == nil {
		return nil
	}
	return j.conn.Close()
}

func (j *Journal) Record(e Entry) error {
	if j == nil {
		return nil
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	err := sqlitex.Execute(j.conn,
		`INSERT INTO generations (run_id, book, stage, chapter, attempts, prompt_chars, response_chars, duration_ms, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			e.RunID, e.Book, e.Stage, e.Chapter, e.Attempts, e.PromptChars, e.ResponseChars,
			e.Duration.Milliseconds(), e.Status, e.Error, e.Created.UTC().Format(time.RFC3339Nano),
		}})
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// Rebind attributes entries of a run recorded before book title was known.
func (j *Journal) Rebind(runID, book string) error {
	if j == nil {
		return nil
	}
	err := sqlitex.Execute(j.conn, `UPDATE generations SET book = ? WHERE run_id = ? AND book = ''`,
		&sqlitex.ExecOptions{Args: []any{book, runID}})
	if err != nil {
		return fmt.Errorf("rebind run %s: %w", runID, err)
	}
	return nil
}

// History returns all entries of the book in recording order.
func (j *Journal) History(book string) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	var out []Entry
	err := sqlitex.Execute(j.conn,
		`SELECT run_id, book, stage, chapter, attempts, prompt_chars, response_chars, duration_ms, status, error, created_at
		 FROM generations WHERE book = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{book},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				e := Entry{
					RunID:         stmt.ColumnText(0),
					Book:          stmt.ColumnText(1),
					Stage:         stmt.ColumnText(2),
					Chapter:       stmt.ColumnInt(3),
					Attempts:      stmt.ColumnInt(4),
					PromptChars:   stmt.ColumnInt(5),
					ResponseChars: stmt.ColumnInt(6),
					Duration:      time.Duration(stmt.ColumnInt64(7)) * time.Millisecond,
					Status:        stmt.ColumnText(8),
					Error:         stmt.ColumnText(9),
				}
				e.Created, _ = time.Parse(time.RFC3339Nano, stmt.ColumnText(10))
				out = append(out, e)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("read history of %s: %w", book, err)
	}
	return out, nil
}
