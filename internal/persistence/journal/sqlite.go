package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"worldrenew/internal/renewal"
)

// SQLiteJournal is the provenance sink: every applied scan fact and every
// stabilization decision, written by a single goroutine off the tick thread.
// The engine never reads it back; it exists for operators and tooling.
type SQLiteJournal struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqFact reqKind = iota + 1
	reqDecision
)

type req struct {
	kind     reqKind
	fact     renewal.FactLogEntry
	decision decisionRow
}

type decisionRow struct {
	Pass       uint64
	Kind       string
	WorldID    string
	RegionX    int
	RegionZ    int
	ChunkCount int
	DetailJSON string
	RecordedAt string
}

func Open(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLiteJournal{
		db: db,
		// High buffer: scan bursts (a full region sweep) must not stall the gate.
		ch: make(chan req, 65536),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS facts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id TEXT NOT NULL,
			region_x INTEGER NOT NULL,
			region_z INTEGER NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			scan_tick INTEGER NOT NULL,
			source TEXT,
			unresolved TEXT,
			inhabited INTEGER,
			changed INTEGER NOT NULL,
			first_scanned INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_facts_key ON facts(world_id, region_x, region_z, chunk_x, chunk_z);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			pass INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			world_id TEXT,
			region_x INTEGER,
			region_z INTEGER,
			chunk_count INTEGER NOT NULL,
			detail_json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (j *SQLiteJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

// WriteFact implements renewal.FactLogger. Drops if the writer falls behind;
// the journal is a secondary record, never backpressure on the gate.
func (j *SQLiteJournal) WriteFact(entry renewal.FactLogEntry) error {
	if j == nil || j.closed.Load() {
		return nil
	}
	select {
	case j.ch <- req{kind: reqFact, fact: entry}:
	default:
	}
	return nil
}

// OnStable implements renewal.StableListener: one row per completed pass.
func (j *SQLiteJournal) OnStable(snap *renewal.StableSnapshot) {
	if j == nil || j.closed.Load() || snap == nil {
		return
	}
	row := decisionRow{
		Pass:       snap.Pass,
		Kind:       "NONE",
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if d := snap.Decision; d != nil {
		if d.Kind == renewal.DecisionRegion {
			row.Kind = "REGION"
			row.WorldID = d.Region.WorldID
			row.RegionX = d.Region.RegionX
			row.RegionZ = d.Region.RegionZ
		} else {
			row.Kind = "CHUNK_BATCH"
			row.ChunkCount = len(d.Chunks)
		}
		if b, err := json.Marshal(d); err == nil {
			row.DetailJSON = string(b)
		}
	}
	select {
	case j.ch <- req{kind: reqDecision, decision: row}:
	default:
	}
}

func (j *SQLiteJournal) loop() {
	ctx := context.Background()

	insertFact, _ := j.db.Prepare(`INSERT INTO facts(world_id,region_x,region_z,chunk_x,chunk_z,scan_tick,source,unresolved,inhabited,changed,first_scanned,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertDecision, _ := j.db.Prepare(`INSERT OR REPLACE INTO decisions(pass,kind,world_id,region_x,region_z,chunk_count,detail_json,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertFact != nil {
			_ = insertFact.Close()
		}
		if insertDecision != nil {
			_ = insertDecision.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
	}

	flush := time.NewTicker(500 * time.Millisecond)
	defer flush.Stop()

	for {
		select {
		case r, ok := <-j.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqFact:
				f := r.fact
				var inhabited any
				if f.Inhabited != nil {
					inhabited = *f.Inhabited
				}
				_, _ = tx.Stmt(insertFact).Exec(
					f.Key.WorldID, f.Key.RegionX, f.Key.RegionZ, f.Key.ChunkX, f.Key.ChunkZ,
					f.ScanTick, f.Source, string(f.Unresolved), inhabited,
					boolInt(f.Changed), boolInt(f.FirstScanned),
					time.Now().UTC().Format(time.RFC3339Nano),
				)
			case reqDecision:
				d := r.decision
				_, _ = tx.Stmt(insertDecision).Exec(
					d.Pass, d.Kind, d.WorldID, d.RegionX, d.RegionZ,
					d.ChunkCount, d.DetailJSON, d.RecordedAt,
				)
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-flush.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}

// FactCount reports committed fact rows. Ops/tooling helper.
func (j *SQLiteJournal) FactCount() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&n)
	return n, err
}

// DecisionCount reports committed decision rows.
func (j *SQLiteJournal) DecisionCount() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM decisions`).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
