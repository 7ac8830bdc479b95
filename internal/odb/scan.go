package odb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
)

// Entry is one successfully read and verified object.
type Entry struct {
	ID     object.ID
	Object object.Object
}

// Corrupted is a discoverable entry that could not be read as an object.
type Corrupted struct {
	// Path is the file or directory that failed.
	Path string

	// ID is the ID implied by the path, if the name was well formed.
	ID object.ID

	// Err describes the failure (errs.ErrIntegrity for hash mismatches).
	Err error
}

// ScanResult is the partial-success shape of Scan: every entry in the store
// lands in exactly one of the two lists.
type ScanResult struct {
	Objects   []Entry
	Corrupted []Corrupted
}

// Scan walks the whole fan-out tree once, verifying every object. Corrupted
// entries are collected rather than returned as an error, so one bad file
// never hides the rest of the store. The returned error is reserved for
// failures to list the tree itself.
//
// Both lists are sorted (by ID, then by path). In-flight lock files are not
// entries and are skipped.
func (db *DB) Scan(ctx context.Context) (*ScanResult, error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "Scan")
	defer span.End()

	fans, err := db.fanDirs()
	if err != nil {
		recordLatency(ctx, "scan", start, false)
		return nil, err
	}

	var (
		mu     sync.Mutex
		result ScanResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, fan := range fans {
		g.Go(func() error {
			objs, bad, err := db.scanFan(gctx, fan)
			if err != nil {
				return err
			}
			mu.Lock()
			result.Objects = append(result.Objects, objs...)
			result.Corrupted = append(result.Corrupted, bad...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordLatency(ctx, "scan", start, false)
		return nil, err
	}

	sort.Slice(result.Objects, func(i, j int) bool {
		return result.Objects[i].ID < result.Objects[j].ID
	})
	sort.Slice(result.Corrupted, func(i, j int) bool {
		return result.Corrupted[i].Path < result.Corrupted[j].Path
	})

	span.SetAttributes(
		attribute.Int("odb.objects", len(result.Objects)),
		attribute.Int("odb.corrupted", len(result.Corrupted)),
	)
	recordCorrupted(ctx, len(result.Corrupted))
	recordLatency(ctx, "scan", start, true)
	if len(result.Corrupted) > 0 {
		db.logger.Warn("scan found corrupted entries",
			"objects", len(result.Objects),
			"corrupted", len(result.Corrupted))
	}
	return &result, nil
}

func (db *DB) scanFan(ctx context.Context, fan string) ([]Entry, []Corrupted, error) {
	dir := filepath.Join(db.dir, fan)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("odb: scan %s: %w", dir, err)
	}

	var (
		objs []Entry
		bad  []Corrupted
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := e.Name()
		path := filepath.Join(dir, name)
		if strings.HasSuffix(name, lockfile.Suffix) {
			continue
		}
		if e.IsDir() || !isObjectName(name) {
			bad = append(bad, Corrupted{Path: path, Err: fmt.Errorf("not an object file name")})
			continue
		}

		id := object.ID(fan + name)
		encoded, err := os.ReadFile(path)
		if err != nil {
			bad = append(bad, Corrupted{Path: path, ID: id, Err: err})
			continue
		}
		obj, err := db.verify(ctx, id, encoded)
		if err != nil {
			bad = append(bad, Corrupted{Path: path, ID: id, Err: err})
			continue
		}
		objs = append(objs, Entry{ID: id, Object: obj})
	}
	return objs, bad, nil
}
