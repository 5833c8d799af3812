// snapshot/store.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mmp/avmrms/errs"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/util"
	"github.com/mmp/avmrms/wxlog"
)

// sidecarMeta carries the fields the wire format has no room for
// (grid_bounds, the phase telemetry counters) but that /v1/weather/volume
// and /v1/meta need at serve time. It's msgpack-encoded next to the
// wire-format .bin, matching util.CacheStoreObject's encoding choice.
type sidecarMeta struct {
	Bounds    mrms.Bounds
	PhaseMeta PhaseMeta
}

func sidecarPath(binPath string) string {
	return binPath[:len(binPath)-len(filepath.Ext(binPath))] + ".meta"
}

// Pool a limited number of zstd encoders/decoders to bound memory use
// under concurrent snapshot writes.
var (
	zstdEncoders chan *zstd.Encoder
	zstdDecoders chan *zstd.Decoder
)

func init() {
	const n = 16
	zstdEncoders = make(chan *zstd.Encoder, n)
	for range n {
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		zstdEncoders <- zw
	}
	zstdDecoders = make(chan *zstd.Decoder, n)
	for range n {
		zr, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		zstdDecoders <- zr
	}
}

type entry struct {
	path string
	size int64
}

// Store persists zstd-compressed wire-format snapshots under storageDir,
// keyed by scan_time, with byte-capped retention.
type Store struct {
	mu        sync.Mutex
	dir       string
	retainCap int64
	byTime    map[int64]entry // scan_time unix ms -> file
	totalSize int64
	tempFiles *util.TempFileRegistry
	lg        *wxlog.Logger
}

// Open rebuilds the in-memory index from storageDir, matching files named
// "<scan_time_iso>.bin".
func Open(dir string, retentionBytes int64, lg *wxlog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: creating storage dir: %w", err)
	}

	s := &Store{
		dir:       dir,
		retainCap: retentionBytes,
		byTime:    make(map[int64]entry),
		tempFiles: util.MakeTempFileRegistry(nil),
		lg:        lg,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading storage dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".bin" {
			continue
		}
		ts, err := time.Parse("2006-01-02T15:04:05Z", de.Name()[:len(de.Name())-len(".bin")])
		if err != nil {
			continue // not a snapshot file we recognize; skip
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		s.byTime[ts.UnixMilli()] = entry{path: filepath.Join(dir, de.Name()), size: info.Size()}
		s.totalSize += info.Size()
	}

	return s, nil
}

// Write encodes, zstd-compresses, and atomically persists s, then
// enforces retention. Fatal disk errors are surfaced distinctly so the
// caller can abort the process before a write would fail partway through.
func (s *Store) Write(snap *Snapshot) error {
	if err := checkDiskSpace(s.dir, 1); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFatal, err)
	}

	raw, err := Encode(snap)
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %v", errs.ErrPermanent, err)
	}

	zw := <-zstdEncoders
	defer func() { zstdEncoders <- zw }()

	compressed := zw.EncodeAll(raw, nil)

	name := snap.ScanTime.UTC().Format("2006-01-02T15:04:05Z") + ".bin"
	finalPath := filepath.Join(s.dir, name)
	tmpPath := finalPath + ".tmp"
	metaPath := sidecarPath(finalPath)
	metaTmpPath := metaPath + ".tmp"

	s.tempFiles.RegisterPath(tmpPath)
	defer s.tempFiles.RemoveAllPrefix(tmpPath)
	s.tempFiles.RegisterPath(metaTmpPath)
	defer s.tempFiles.RemoveAllPrefix(metaTmpPath)

	metaRaw, err := msgpack.Marshal(sidecarMeta{Bounds: snap.Bounds, PhaseMeta: snap.PhaseMeta})
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot sidecar: %v", errs.ErrPermanent, err)
	}

	if err := os.WriteFile(tmpPath, compressed, 0o644); err != nil {
		return fmt.Errorf("%w: writing snapshot: %v", errs.ErrFatal, err)
	}
	if err := os.WriteFile(metaTmpPath, metaRaw, 0o644); err != nil {
		return fmt.Errorf("%w: writing snapshot sidecar: %v", errs.ErrFatal, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: renaming snapshot: %v", errs.ErrFatal, err)
	}
	if err := os.Rename(metaTmpPath, metaPath); err != nil {
		return fmt.Errorf("%w: renaming snapshot sidecar: %v", errs.ErrFatal, err)
	}

	s.mu.Lock()
	key := snap.ScanTime.UnixMilli()
	if old, ok := s.byTime[key]; ok {
		s.totalSize -= old.size
	}
	s.byTime[key] = entry{path: finalPath, size: int64(len(compressed))}
	s.totalSize += int64(len(compressed))
	s.mu.Unlock()

	s.prune()
	return nil
}

// prune deletes the oldest snapshots until total size is under the
// configured retention cap. The newest snapshot is never deleted, even
// when it alone exceeds the cap.
func (s *Store) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalSize <= s.retainCap {
		return
	}

	keys := make([]int64, 0, len(s.byTime))
	for k := range s.byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys[:max(len(keys)-1, 0)] {
		if s.totalSize <= s.retainCap {
			break
		}
		e := s.byTime[k]
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			if s.lg != nil {
				s.lg.Warnf("snapshot: pruning %s: %v", e.path, err)
			}
			continue
		}
		_ = os.Remove(sidecarPath(e.path))
		s.totalSize -= e.size
		delete(s.byTime, k)
	}
}

// ReadLatest returns the decoded snapshot for the maximum scan_time on
// disk, or errs.ErrNotYetPublished if the store is empty.
func (s *Store) ReadLatest() (*Snapshot, error) {
	s.mu.Lock()
	var maxKey int64 = -1
	var path string
	for k, e := range s.byTime {
		if k > maxKey {
			maxKey = k
			path = e.path
		}
	}
	s.mu.Unlock()

	if maxKey < 0 {
		return nil, errs.ErrNotYetPublished
	}
	return s.readFile(path)
}

func (s *Store) readFile(path string) (*Snapshot, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot file: %v", errs.ErrTransient, err)
	}

	zr := <-zstdDecoders
	defer func() { zstdDecoders <- zr }()

	raw, err := zr.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing snapshot: %v", errs.ErrPermanent, err)
	}
	snap, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	if metaRaw, err := os.ReadFile(sidecarPath(path)); err == nil {
		var meta sidecarMeta
		if err := msgpack.Unmarshal(metaRaw, &meta); err == nil {
			snap.Bounds = meta.Bounds
			snap.PhaseMeta = meta.PhaseMeta
		} else if s.lg != nil {
			s.lg.Warnf("snapshot: sidecar %s unreadable, serving without grid_bounds/phase telemetry: %v", sidecarPath(path), err)
		}
	}
	return snap, nil
}

// Len reports the number of indexed snapshots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTime)
}

// TotalBytes reports the current sum of on-disk compressed snapshot sizes.
func (s *Store) TotalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSize
}

// checkDiskSpace verifies at least requiredGB of free space remains in
// dir's filesystem before an expensive write.
func checkDiskSpace(dir string, requiredGB int64) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return fmt.Errorf("failed to check disk space for %s: %w", dir, err)
	}

	availableBytes := int64(stat.Bavail) * int64(stat.Bsize)
	requiredBytes := requiredGB * 1024 * 1024 * 1024

	if availableBytes < requiredBytes {
		return fmt.Errorf("insufficient disk space in %s: %.2f GB available, %d GB required",
			dir, float64(availableBytes)/(1024*1024*1024), requiredGB)
	}
	return nil
}
