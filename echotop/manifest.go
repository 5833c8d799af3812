// echotop/manifest.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package echotop

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mmp/avmrms/util"
)

// thresholdKey names a threshold the way manifest entries are keyed
// internally ("top18", "top30", ...), since the manifest format is keyed
// by string identifier.
func thresholdKey(dbz int) string {
	return fmt.Sprintf("top%d", dbz)
}

// Manifest retains, per threshold, the delta-encoded and flate-compressed
// list of scan times observed for that threshold — a compact
// "available data instants" index keyed by the four echo-top thresholds.
// Decompressed results are
// cached briefly since most queries repeat within the same polling cycle.
type Manifest struct {
	data  map[string][]byte
	cache *expirable.LRU[string, []time.Time]
}

// NewManifest creates an empty per-threshold timestamp manifest.
func NewManifest() *Manifest {
	return &Manifest{
		data:  make(map[string][]byte),
		cache: expirable.NewLRU[string, []time.Time](8, nil, time.Hour),
	}
}

// Observe records that a scan at t was seen for the given threshold.
func (m *Manifest) Observe(thresholdDbz int, t time.Time) error {
	key := thresholdKey(thresholdDbz)
	existing, _ := m.Timestamps(thresholdDbz)
	existing = append(existing, t.UTC())
	slices.SortFunc(existing, func(a, b time.Time) int { return a.Compare(b) })
	existing = slices.CompactFunc(existing, func(a, b time.Time) bool { return a.Equal(b) })

	unix := util.MapSlice(existing, func(t time.Time) int64 { return t.Unix() })
	compressed, err := compressTimestamps(unix)
	if err != nil {
		return fmt.Errorf("echotop: compressing manifest for %s: %w", key, err)
	}
	m.data[key] = compressed
	m.cache.Remove(key)
	return nil
}

// Timestamps returns the known scan times for a threshold, oldest first.
func (m *Manifest) Timestamps(thresholdDbz int) ([]time.Time, bool) {
	key := thresholdKey(thresholdDbz)
	if times, ok := m.cache.Get(key); ok {
		return times, true
	}

	compressed, ok := m.data[key]
	if !ok {
		return nil, false
	}

	unix, err := decompressTimestamps(compressed)
	if err != nil {
		return nil, false
	}

	times := make([]time.Time, len(unix))
	for i, s := range unix {
		times[i] = time.Unix(s, 0).UTC()
	}
	m.cache.Add(key, times)
	return times, true
}

// Latest returns the most recent scan time observed for a threshold.
func (m *Manifest) Latest(thresholdDbz int) (time.Time, bool) {
	times, ok := m.Timestamps(thresholdDbz)
	if !ok || len(times) == 0 {
		return time.Time{}, false
	}
	return times[len(times)-1], true
}

func compressTimestamps(timestamps []int64) ([]byte, error) {
	deltaEncoded := util.DeltaEncode(timestamps)

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(fw, binary.LittleEndian, deltaEncoded); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressTimestamps(compressed []byte) ([]int64, error) {
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, fr); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("invalid decompressed manifest length: %d", len(data))
	}

	numInts := len(data) / 8
	deltaEncoded := make([]int64, numInts)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, deltaEncoded); err != nil {
		return nil, err
	}
	return util.DeltaDecode(deltaEncoded), nil
}
