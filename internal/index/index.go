// Package index maintains the derived secondary indexes of a repository.
//
// Indexes are pure caches under indexes/<name>.json mapping a key (impact
// tag, file path, symbol, external commit) to the objects that carry it.
// They can be deleted at any time and rebuilt from the object database.
//
// Each file records the set of object IDs it covers. A reader treats the
// index as fresh only when that set equals the object database's current
// listing; anything else (missing file, bad JSON, old version, objects the
// index has not seen) means "fall back to a scan", never an error.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/odb"
)

// Version is the on-disk format version. Files with any other version are
// ignored and rewritten on the next rebuild.
const Version = 1

// Name identifies one index file.
type Name string

const (
	Impact   Name = "impact"
	CodePath Name = "codepath"
	Symbols  Name = "symbols"
	Commits  Name = "commits"
)

// Names lists every index.
var Names = []Name{Impact, CodePath, Symbols, Commits}

// Entry is one object filed under a key.
type Entry struct {
	ID          object.ID          `json:"id"`
	Kind        object.Kind        `json:"kind"`
	Symbol      string             `json:"symbol,omitempty"`
	BindingType object.BindingType `json:"binding_type,omitempty"`
}

// File is the serialized form of one index.
type File struct {
	Version int                `json:"version"`
	Entries map[string][]Entry `json:"entries"`
	Covered []object.ID        `json:"covered"`
}

func newFile() *File {
	return &File{Version: Version, Entries: map[string][]Entry{}}
}

// add files e under key unless an entry with the same ID is already there.
func (f *File) add(key string, e Entry) {
	for _, existing := range f.Entries[key] {
		if existing.ID == e.ID {
			return
		}
	}
	f.Entries[key] = append(f.Entries[key], e)
}

// cover marks id as seen, once.
func (f *File) cover(id object.ID) {
	i := sort.Search(len(f.Covered), func(i int) bool { return f.Covered[i] >= id })
	if i < len(f.Covered) && f.Covered[i] == id {
		return
	}
	f.Covered = append(f.Covered, "")
	copy(f.Covered[i+1:], f.Covered[i:])
	f.Covered[i] = id
}

// Covers reports whether the file's coverage set is exactly ids.
// ids must be sorted, as returned by odb.DB.List.
func (f *File) Covers(ids []object.ID) bool {
	if len(f.Covered) != len(ids) {
		return false
	}
	for i := range ids {
		if f.Covered[i] != ids[i] {
			return false
		}
	}
	return true
}

// normalize sorts entries and coverage so that equal contents serialize to
// equal bytes.
func (f *File) normalize() {
	for k, list := range f.Entries {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		f.Entries[k] = list
	}
	sort.Slice(f.Covered, func(i, j int) bool { return f.Covered[i] < f.Covered[j] })
}

// keyed is one (index, key, entry) triple derived from an object.
type keyed struct {
	name  Name
	key   string
	entry Entry
}

// keysOf lists the index entries an object contributes.
func keysOf(id object.ID, obj object.Object) []keyed {
	var out []keyed
	impacts := func(tags []string) {
		for _, tag := range tags {
			out = append(out, keyed{Impact, tag, Entry{ID: id, Kind: obj.Kind()}})
		}
	}

	switch o := obj.(type) {
	case object.Intent:
		impacts(o.Impacts)
	case object.Constraint:
		impacts(o.Impacts)
	case object.CodeBinding:
		e := Entry{ID: id, Kind: obj.Kind(), Symbol: o.Symbol, BindingType: o.BindingType}
		out = append(out, keyed{CodePath, o.Path, e})
		if o.Symbol != "" {
			out = append(out, keyed{Symbols, o.Symbol, e})
		}
	case object.ChangeSet:
		out = append(out, keyed{Commits, o.Commit, Entry{ID: id, Kind: obj.Kind()}})
	case object.DecisionRecord, object.AgentOperation, object.BehaviorDiff, object.StreamSnapshot:
		// Covered, but carry no indexed keys.
	}
	return out
}

// Store reads and writes the index files of one repository.
// It is safe for concurrent use, including from several processes.
type Store struct {
	dir    string
	policy lockfile.Policy
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLockPolicy sets the retry policy for index file locks.
func WithLockPolicy(p lockfile.Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New returns a Store for the indexes directory dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		policy: lockfile.DefaultPolicy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the indexes directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name Name) string {
	return filepath.Join(s.dir, string(name)+".json")
}

// Load reads one index file. ok is false when the file is missing,
// unreadable, malformed or of another version.
func (s *Store) Load(name Name) (f *File, ok bool) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("index unreadable", "index", name, "error", err)
		}
		return nil, false
	}
	f = newFile()
	if err := json.Unmarshal(b, f); err != nil {
		s.logger.Warn("index malformed", "index", name, "error", err)
		return nil, false
	}
	if f.Version != Version {
		s.logger.Debug("index version mismatch", "index", name, "version", f.Version)
		return nil, false
	}
	if f.Entries == nil {
		f.Entries = map[string][]Entry{}
	}
	return f, true
}

// Lookup returns the entries under key if the index is fresh for the
// object listing ids. ok is false when the caller must fall back to a scan.
func (s *Store) Lookup(name Name, key string, ids []object.ID) (entries []Entry, ok bool) {
	f, ok := s.Load(name)
	if !ok || !f.Covers(ids) {
		return nil, false
	}
	return f.Entries[key], true
}

// Update files a newly written object into every index and marks it
// covered. Updating the same object twice changes nothing.
func (s *Store) Update(ctx context.Context, id object.ID, obj object.Object) (err error) {
	start := time.Now()
	ctx, span := startOperationSpan(ctx, "Update")
	defer func() {
		span.End()
		recordOperationMetrics(ctx, "update", start, err == nil)
	}()

	byName := make(map[Name][]keyed)
	for _, k := range keysOf(id, obj) {
		byName[k.name] = append(byName[k.name], k)
	}
	for _, name := range Names {
		if err := s.modify(name, func(f *File) {
			for _, k := range byName[name] {
				f.add(k.key, k.entry)
			}
			f.cover(id)
		}); err != nil {
			return err
		}
	}
	s.logger.Debug("index updated", "id", id.Short(), "kind", obj.Kind())
	return nil
}

// modify applies fn to the current contents of one index under its lock.
func (s *Store) modify(name Name, fn func(*File)) error {
	path := s.path(name)
	lock, err := s.policy.Acquire(path)
	if err != nil {
		return err
	}
	defer lock.Release()

	f, ok := s.Load(name)
	if !ok {
		// An unusable file restarts empty; its coverage no longer matches
		// the store, so readers keep falling back until a rebuild.
		f = newFile()
	}
	fn(f)
	return s.commit(lock, f)
}

func (s *Store) commit(lock *lockfile.Lock, f *File) error {
	f.normalize()
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("index: encode %s: %w", lock.Target(), err)
	}
	if _, err := lock.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("index: write %s: %w", lock.Target(), err)
	}
	return lock.Commit()
}

// Stats summarizes a rebuild.
type Stats struct {
	Objects   int
	Corrupted int
	Keys      map[Name]int
}

// Rebuild replaces every index with one derived from a single scan of db.
// Corrupted objects are left out of the coverage set, so queries keep
// scanning (and reporting them) until they are repaired.
func (s *Store) Rebuild(ctx context.Context, db *odb.DB) (stats Stats, err error) {
	start := time.Now()
	ctx, span := startOperationSpan(ctx, "Rebuild")
	defer func() {
		span.End()
		recordOperationMetrics(ctx, "rebuild", start, err == nil)
	}()

	res, err := db.Scan(ctx)
	if err != nil {
		return Stats{}, err
	}

	files := make(map[Name]*File, len(Names))
	for _, name := range Names {
		files[name] = newFile()
	}
	for _, e := range res.Objects {
		for _, k := range keysOf(e.ID, e.Object) {
			files[k.name].add(k.key, k.entry)
		}
		for _, f := range files {
			f.Covered = append(f.Covered, e.ID)
		}
	}

	stats = Stats{Objects: len(res.Objects), Corrupted: len(res.Corrupted), Keys: map[Name]int{}}
	for _, name := range Names {
		if err := s.replace(name, files[name]); err != nil {
			return Stats{}, err
		}
		stats.Keys[name] = len(files[name].Entries)
		recordIndexKeys(ctx, name, len(files[name].Entries))
	}
	s.logger.Debug("indexes rebuilt", "objects", stats.Objects, "corrupted", stats.Corrupted)
	return stats, nil
}

func (s *Store) replace(name Name, f *File) error {
	lock, err := s.policy.Acquire(s.path(name))
	if err != nil {
		return err
	}
	defer lock.Release()
	return s.commit(lock, f)
}

// Remove deletes every index file. Queries fall back to scanning until the
// next update or rebuild.
func (s *Store) Remove() error {
	for _, name := range Names {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("index: remove %s: %w", name, err)
		}
	}
	return nil
}
