// Package recording stores the context events of a device in a SQLite
// database.
package recording

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/structs"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ctxswitch/drawctxt"
)

// Table names.
const (
	SwitchTable  = "context_switch"
	ContextTable = "context_event"
)

// SwitchEntry is a row of the switch table.
type SwitchEntry struct {
	Seq           int
	FromCtx       string
	ToCtx         string
	Saved         string
	Restored      string
	SkippedHung   bool
	PageTableBase uint32
	RingStart     int
	Words         int
}

// ContextEntry is a row of the context event table.
type ContextEntry struct {
	Seq          int
	Event        string
	Ctx          string
	Flags        string
	StateAddr    uint32
	ShadowAddr   uint32
	ShadowWidth  uint32
	ShadowHeight uint32
}

// SQLiteRecorder is a hook that records context creation, destruction and
// switches. Entries are buffered and written in batches.
type SQLiteRecorder struct {
	*sql.DB

	mu        sync.Mutex
	batchSize int
	seq       int
	switches  []SwitchEntry
	contexts  []ContextEntry
}

// NewSQLiteRecorder creates a recorder writing into path + ".sqlite3". An
// empty path picks a unique name. The file must not exist yet. Buffered
// entries are flushed when the program exits through atexit.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	if path == "" {
		path = "ctxsim_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	r, err := NewSQLiteRecorderWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { _ = r.Flush() })

	return r, nil
}

// NewSQLiteRecorderWithDB creates a recorder writing into an open database.
func NewSQLiteRecorderWithDB(db *sql.DB) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{
		DB:        db,
		batchSize: 1000,
	}

	if err := r.createTable(SwitchTable, SwitchEntry{}); err != nil {
		return nil, err
	}

	if err := r.createTable(ContextTable, ContextEntry{}); err != nil {
		return nil, err
	}

	return r, nil
}

// SetBatchSize sets the number of buffered entries that triggers a flush.
func (r *SQLiteRecorder) SetBatchSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchSize = n
}

func (r *SQLiteRecorder) createTable(name string, sample any) error {
	fields := strings.Join(structs.Names(sample), ", \n\t")
	query := `CREATE TABLE IF NOT EXISTS ` + name + " (\n\t" + fields + "\n);"

	if _, err := r.Exec(query); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}

	return nil
}

// Func records the event of a device hook.
func (r *SQLiteRecorder) Func(ctx sim.HookCtx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ctx.Pos {
	case drawctxt.HookPosAfterSwitch:
		rec, ok := ctx.Detail.(*drawctxt.SwitchRecord)
		if !ok {
			return
		}

		r.switches = append(r.switches, SwitchEntry{
			Seq:           r.nextSeq(),
			FromCtx:       rec.From,
			ToCtx:         rec.To,
			Saved:         flagNames(rec.Saved),
			Restored:      flagNames(rec.Restored),
			SkippedHung:   rec.SkippedHung,
			PageTableBase: rec.PageTableBase,
			RingStart:     rec.RingStart,
			Words:         rec.Words(),
		})
	case drawctxt.HookPosContextCreated, drawctxt.HookPosContextDestroyed:
		c, ok := ctx.Item.(*drawctxt.Context)
		if !ok {
			return
		}

		r.contexts = append(r.contexts, contextEntry(r.nextSeq(), ctx.Pos.Name, c))
	default:
		return
	}

	if len(r.switches)+len(r.contexts) >= r.batchSize {
		if err := r.flush(); err != nil {
			panic(err)
		}
	}
}

func (r *SQLiteRecorder) nextSeq() int {
	r.seq++
	return r.seq
}

func flagNames(f drawctxt.Flags) string {
	if f == 0 {
		return ""
	}

	return f.String()
}

func contextEntry(seq int, event string, c *drawctxt.Context) ContextEntry {
	e := ContextEntry{
		Seq:   seq,
		Event: event,
		Ctx:   c.ID(),
		Flags: c.Flags().String(),
	}

	if st := c.StateBuffer(); st != nil {
		e.StateAddr = st.GPUAddr
	}

	if s := c.Shadow(); s != nil {
		e.ShadowAddr = s.Buffer.GPUAddr
		e.ShadowWidth = s.Width
		e.ShadowHeight = s.Height
	}

	return e
}

// Flush writes the buffered entries into the database.
func (r *SQLiteRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flush()
}

func (r *SQLiteRecorder) flush() error {
	if len(r.switches) == 0 && len(r.contexts) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return err
	}

	for _, e := range r.switches {
		if err := insert(tx, SwitchTable, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	for _, e := range r.contexts {
		if err := insert(tx, ContextTable, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.switches = nil
	r.contexts = nil

	return nil
}

func insert(tx *sql.Tx, table string, entry any) error {
	values := structs.Values(entry)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")

	_, err := tx.Exec("INSERT INTO "+table+" VALUES ("+marks+")", values...)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}

	return nil
}

// Close flushes the buffered entries and closes the database.
func (r *SQLiteRecorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	return r.DB.Close()
}

// Switches reads back the recorded switches in order.
func (r *SQLiteRecorder) Switches() ([]SwitchEntry, error) {
	rows, err := r.Query(
		"SELECT * FROM " + SwitchTable + " ORDER BY Seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SwitchEntry
	for rows.Next() {
		var e SwitchEntry
		if err := rows.Scan(
			&e.Seq, &e.FromCtx, &e.ToCtx, &e.Saved, &e.Restored,
			&e.SkippedHung, &e.PageTableBase, &e.RingStart, &e.Words,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ContextEvents reads back the recorded context events in order.
func (r *SQLiteRecorder) ContextEvents() ([]ContextEntry, error) {
	rows, err := r.Query(
		"SELECT * FROM " + ContextTable + " ORDER BY Seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ContextEntry
	for rows.Next() {
		var e ContextEntry
		if err := rows.Scan(
			&e.Seq, &e.Event, &e.Ctx, &e.Flags,
			&e.StateAddr, &e.ShadowAddr, &e.ShadowWidth, &e.ShadowHeight,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
