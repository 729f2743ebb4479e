package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	coreerrors "codeindex/internal/core/errors"
	"codeindex/internal/engine/graph"
	"codeindex/internal/engine/parser"
	"codeindex/internal/shared/util"

	"github.com/google/uuid"
)

const (
	DefaultKeep   = 3
	tempPrefix    = ".tmp-"
	versionPrefix = "v"
)

// Store owns an output directory of versioned snapshots. A snapshot becomes
// current only once its directory is fully written and CURRENT names it.
type Store struct {
	dir  string
	keep int
}

type WriteOptions struct {
	Summary SummaryOptions
	DOT     bool
}

// Loaded is the part of the current snapshot an incremental run reuses.
type Loaded struct {
	Dir      string
	Manifest Manifest
	Records  map[string]parser.FactRecord
}

func NewStore(dir string, keep int) *Store {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Store{dir: dir, keep: keep}
}

func (s *Store) Dir() string {
	return s.dir
}

func versionDir(version int) string {
	return versionPrefix + strconv.Itoa(version)
}

func parseVersionDir(name string) (int, bool) {
	if !strings.HasPrefix(name, versionPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, versionPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Current resolves the CURRENT pointer. It returns a NOT_FOUND error when no
// snapshot has been promoted yet.
func (s *Store) Current() (int, string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentPointer))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, "", coreerrors.New(coreerrors.CodeNotFound, "no snapshot has been written")
		}
		return 0, "", ioError(err, "read current pointer", s.dir)
	}
	name := strings.TrimSpace(string(data))
	version, ok := parseVersionDir(name)
	if !ok {
		return 0, "", coreerrors.AddContext(
			coreerrors.Newf(coreerrors.CodeValidationError, "current pointer names %q", name),
			coreerrors.CtxPath, filepath.Join(s.dir, CurrentPointer))
	}
	return version, filepath.Join(s.dir, name), nil
}

func (s *Store) versions() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := parseVersionDir(e.Name()); ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

// NextVersion is one past the highest version present on disk.
func (s *Store) NextVersion() (int, error) {
	versions, err := s.versions()
	if err != nil {
		return 0, ioError(err, "list snapshots", s.dir)
	}
	if len(versions) == 0 {
		return 1, nil
	}
	return versions[len(versions)-1] + 1, nil
}

// CleanTemp removes leftovers of interrupted writes.
func (s *Store) CleanTemp() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return ioError(err, "list snapshots", s.dir)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), tempPrefix) {
			if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
				return ioError(err, "remove temp snapshot", e.Name())
			}
			slog.Debug("removed stale snapshot temp dir", "path", e.Name())
		}
	}
	return nil
}

// Write renders every artifact of snap into a temp directory, promotes it
// to the next version and repoints CURRENT. snap.Version is assigned here.
// It returns the promoted directory.
func (s *Store) Write(ctx context.Context, snap *Snapshot, opts WriteOptions) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", ioError(err, "create output dir", s.dir)
	}
	if err := s.CleanTemp(); err != nil {
		return "", err
	}
	version, err := s.NextVersion()
	if err != nil {
		return "", err
	}
	snap.Version = version

	files, err := renderArtifacts(*snap, opts)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeInternal, "render snapshot")
	}

	tag := snap.RunID
	if tag == "" {
		tag = uuid.NewString()
	}
	tmp := filepath.Join(s.dir, tempPrefix+tag)
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", ioError(err, "create temp snapshot", tmp)
	}
	names := util.SortedStringKeys(files)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(tmp)
			return "", err
		}
		if err := util.WriteFileSync(filepath.Join(tmp, name), files[name], 0o644); err != nil {
			_ = os.RemoveAll(tmp)
			return "", ioError(err, "write artifact", name)
		}
	}
	if err := util.SyncDir(tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return "", ioError(err, "sync temp snapshot", tmp)
	}

	final := filepath.Join(s.dir, versionDir(version))
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return "", ioError(err, "promote snapshot", final)
	}
	if err := util.SyncDir(s.dir); err != nil {
		return "", ioError(err, "sync output dir", s.dir)
	}
	pointer := []byte(versionDir(version) + "\n")
	if err := util.WriteFileAtomic(filepath.Join(s.dir, CurrentPointer), pointer, 0o644); err != nil {
		return "", ioError(err, "write current pointer", s.dir)
	}

	if err := s.prune(); err != nil {
		slog.Warn("failed to prune old snapshots", "error", err)
	}
	return final, nil
}

func renderArtifacts(snap Snapshot, opts WriteOptions) (map[string][]byte, error) {
	if snap.Graph == nil {
		return nil, fmt.Errorf("snapshot has no graph")
	}
	files := make(map[string][]byte, 6)
	var err error
	if files[FileStructural], err = EncodeStructural(snap.Records, snap.Graph); err != nil {
		return nil, err
	}
	if files[FileGraph], err = EncodeGraph(snap.Graph); err != nil {
		return nil, err
	}
	if files[FileStaleness], err = EncodeStaleness(snap.Staleness); err != nil {
		return nil, err
	}
	files[FileSummary] = []byte(RenderSummary(snap, opts.Summary))
	if opts.DOT {
		files[FileDOT] = []byte(RenderDOT(snap.Graph))
	}

	manifest := Manifest{
		Counts:        snap.Counts(),
		GeneratedAt:   snap.GeneratedAt,
		Mode:          snap.Mode,
		RunID:         snap.RunID,
		SchemaVersion: SchemaVersion,
		Version:       snap.Version,
	}
	for name := range files {
		manifest.Artifacts = append(manifest.Artifacts, name)
	}
	if files[FileManifest], err = EncodeManifest(manifest); err != nil {
		return nil, err
	}
	return files, nil
}

// prune removes promoted versions older than the newest keep.
func (s *Store) prune() error {
	versions, err := s.versions()
	if err != nil {
		return err
	}
	if len(versions) <= s.keep {
		return nil
	}
	for _, v := range versions[:len(versions)-s.keep] {
		if err := os.RemoveAll(filepath.Join(s.dir, versionDir(v))); err != nil {
			return err
		}
		slog.Debug("pruned snapshot", "version", v)
	}
	return nil
}

// Load reads and validates the current snapshot's manifest and structural
// artifact. Any problem makes the snapshot unusable as a base for an
// incremental run; callers fall back to a full run.
func (s *Store) Load() (*Loaded, error) {
	_, dir, err := s.Current()
	if err != nil {
		return nil, err
	}

	manifestData, err := os.ReadFile(filepath.Join(dir, FileManifest))
	if err != nil {
		return nil, ioError(err, "read manifest", dir)
	}
	if err := validate(schemaManifest, manifestData); err != nil {
		return nil, invalid(err, FileManifest)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, invalid(err, FileManifest)
	}
	if manifest.SchemaVersion != SchemaVersion {
		return nil, coreerrors.AddContext(
			coreerrors.Newf(coreerrors.CodeValidationError, "snapshot schema version %d, want %d", manifest.SchemaVersion, SchemaVersion),
			coreerrors.CtxPath, dir)
	}

	structural, err := os.ReadFile(filepath.Join(dir, FileStructural))
	if err != nil {
		return nil, ioError(err, "read structural artifact", dir)
	}
	if err := validate(schemaStructural, structural); err != nil {
		return nil, invalid(err, FileStructural)
	}
	records, err := DecodeStructural(structural)
	if err != nil {
		return nil, invalid(err, FileStructural)
	}
	return &Loaded{Dir: dir, Manifest: manifest, Records: records}, nil
}

// LoadGraph reads the current snapshot's graph artifact.
func (s *Store) LoadGraph() (*graph.ModuleGraph, error) {
	_, dir, err := s.Current()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, FileGraph))
	if err != nil {
		return nil, ioError(err, "read graph artifact", dir)
	}
	g, err := DecodeGraph(data)
	if err != nil {
		return nil, invalid(err, FileGraph)
	}
	return g, nil
}

func ioError(err error, op, path string) error {
	wrapped := coreerrors.Wrap(err, coreerrors.CodeIO, op)
	wrapped = coreerrors.AddContext(wrapped, coreerrors.CtxOperation, op)
	return coreerrors.AddContext(wrapped, coreerrors.CtxPath, path)
}

func invalid(err error, artifact string) error {
	return coreerrors.AddContext(coreerrors.Wrap(err, coreerrors.CodeValidationError, "invalid snapshot artifact"), coreerrors.CtxPath, artifact)
}
