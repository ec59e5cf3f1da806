package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"ragbot/internal/domain"
	"ragbot/internal/vectorstore"
)

// SchemaVersion is written into every index file.
const SchemaVersion = 1

const schema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE chunks (
	idx        INTEGER PRIMARY KEY,
	text       TEXT NOT NULL,
	start_rune INTEGER NOT NULL,
	end_rune   INTEGER NOT NULL,
	vector     BLOB NOT NULL
);`

func open(path string) (*sql.DB, error) {
	// Rollback journal keeps the index a single file that can be renamed.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(DELETE)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Write creates a new index file at path holding snap. The file must not
// exist yet; callers write to a temporary name and rename it into place.
func Write(ctx context.Context, path string, snap vectorstore.Snapshot) (err error) {
	if len(snap.Chunks) != len(snap.Vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("index file %s already exists", path)
	}
	db, err := open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close index db: %w", cerr)
		}
	}()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	m := snap.Manifest
	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"model":          m.Model,
		"dimension":      strconv.Itoa(m.Dimension),
		"count":          strconv.Itoa(len(snap.Chunks)),
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (idx, text, start_rune, end_rune, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, ch := range snap.Chunks {
		if len(snap.Vectors[i]) != m.Dimension {
			_ = tx.Rollback()
			return fmt.Errorf("chunk %d: vector has %d dimensions, manifest says %d", ch.Index, len(snap.Vectors[i]), m.Dimension)
		}
		if _, err := stmt.ExecContext(ctx, ch.Index, ch.Text, ch.Start, ch.End, encodeVector(snap.Vectors[i])); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write chunk %d: %w", ch.Index, err)
		}
	}
	return tx.Commit()
}

// ReadManifest returns the manifest of the index file at path. A missing file
// yields an error wrapping os.ErrNotExist.
func ReadManifest(ctx context.Context, path string) (vectorstore.Manifest, error) {
	if _, err := os.Stat(path); err != nil {
		return vectorstore.Manifest{}, err
	}
	db, err := open(path)
	if err != nil {
		return vectorstore.Manifest{}, err
	}
	defer db.Close()
	return readManifest(ctx, db)
}

// Read loads the complete index file at path.
func Read(ctx context.Context, path string) (vectorstore.Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return vectorstore.Snapshot{}, err
	}
	db, err := open(path)
	if err != nil {
		return vectorstore.Snapshot{}, err
	}
	defer db.Close()

	m, err := readManifest(ctx, db)
	if err != nil {
		return vectorstore.Snapshot{}, err
	}
	rows, err := db.QueryContext(ctx, `SELECT idx, text, start_rune, end_rune, vector FROM chunks ORDER BY idx`)
	if err != nil {
		return vectorstore.Snapshot{}, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()

	snap := vectorstore.Snapshot{Manifest: m}
	for rows.Next() {
		var (
			ch   domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.Index, &ch.Text, &ch.Start, &ch.End, &blob); err != nil {
			return vectorstore.Snapshot{}, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return vectorstore.Snapshot{}, fmt.Errorf("chunk %d: %w", ch.Index, err)
		}
		if len(vec) != m.Dimension {
			return vectorstore.Snapshot{}, fmt.Errorf("chunk %d: vector has %d dimensions, manifest says %d", ch.Index, len(vec), m.Dimension)
		}
		snap.Chunks = append(snap.Chunks, ch)
		snap.Vectors = append(snap.Vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return vectorstore.Snapshot{}, err
	}
	if len(snap.Chunks) != m.Count {
		return vectorstore.Snapshot{}, fmt.Errorf("index holds %d chunks, manifest says %d", len(snap.Chunks), m.Count)
	}
	return snap, nil
}

func readManifest(ctx context.Context, db *sql.DB) (vectorstore.Manifest, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return vectorstore.Manifest{}, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return vectorstore.Manifest{}, err
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return vectorstore.Manifest{}, err
	}

	if v := meta["schema_version"]; v != strconv.Itoa(SchemaVersion) {
		return vectorstore.Manifest{}, fmt.Errorf("unsupported index schema version %q", v)
	}
	var m vectorstore.Manifest
	m.Model = meta["model"]
	if m.Dimension, err = strconv.Atoi(meta["dimension"]); err != nil {
		return vectorstore.Manifest{}, fmt.Errorf("bad dimension in manifest: %w", err)
	}
	if m.Count, err = strconv.Atoi(meta["count"]); err != nil {
		return vectorstore.Manifest{}, fmt.Errorf("bad count in manifest: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, meta["created_at"]); err != nil {
		return vectorstore.Manifest{}, fmt.Errorf("bad created_at in manifest: %w", err)
	}
	return m, nil
}

func encodeVector(vec []float64) []byte {
	out := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

func decodeVector(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 8", len(raw))
	}
	vec := make([]float64, len(raw)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return vec, nil
}
