// snapshot/wire.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package snapshot implements the binary wire format (v3), zstd-compressed
// on-disk persistence, and byte-capped retention for volumetric precipitation
// snapshots.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mmp/avmrms/brick"
	"github.com/mmp/avmrms/mrms"
	"github.com/mmp/avmrms/phase"
)

const (
	wireMagic       = "AVMR"
	wireVersion     = uint16(3)
	headerBytes     = 48
	recordBytesV3   = 20
	layerCount      = mrms.NumLevels
)

// Snapshot is one fully-assembled volumetric scan, ready for encoding.
type Snapshot struct {
	ScanTime          time.Time
	GeneratedAt       time.Time
	Bounds            mrms.Bounds
	FootprintXMdeg    uint16
	FootprintYMdeg    uint16
	PerLevelCounts    [layerCount]uint32
	Voxels            []brick.Voxel
	PhaseMeta         PhaseMeta
}

// PhaseMeta carries the per-snapshot telemetry counters the phase resolver produces,
// persisted alongside the snapshot so /v1/meta can report them without
// re-decoding voxel data.
type PhaseMeta struct {
	ThermoSignalVoxels     int64
	DualAdjustedVoxels     int64
	DualSuppressedVoxels   int64
	MixedSuppressedVoxels  int64
	MixedEdgePromotedVoxels int64
	PrecipSnowForcedVoxels int64
	AuxWetBulb             int64
	AuxSurfaceTemp         int64
	AuxBrightBandPair      int64
	AuxRQI                 int64
	AuxAny                 int64
	AuxFallback            int64

	// Aux product timestamps actually selected for this scan (zero if that
	// aux was never observed), carried for the volume response's
	// x-av-*-timestamp/x-av-*-age-seconds headers.
	ZdrTimestamp      time.Time
	RhoHVTimestamp    time.Time
	PrecipTimestamp   time.Time
	FreezingTimestamp time.Time
}

// Encode serializes s per the v3 wire format: fixed header, per-level
// pre-merge voxel counts, then voxel_count fixed-size records.
func Encode(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerBytes + layerCount*4 + len(s.Voxels)*recordBytesV3)

	header := make([]byte, headerBytes)
	copy(header[0:4], wireMagic)
	binary.LittleEndian.PutUint16(header[4:6], wireVersion)
	binary.LittleEndian.PutUint16(header[6:8], uint16(headerBytes))
	// bytes 8:12 reserved, left zero
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(s.Voxels)))
	binary.LittleEndian.PutUint16(header[16:18], uint16(layerCount))
	binary.LittleEndian.PutUint16(header[18:20], uint16(recordBytesV3))
	binary.LittleEndian.PutUint64(header[20:28], uint64(s.GeneratedAt.UnixMilli()))
	binary.LittleEndian.PutUint64(header[28:36], uint64(s.ScanTime.UnixMilli()))
	binary.LittleEndian.PutUint16(header[36:38], s.FootprintXMdeg)
	binary.LittleEndian.PutUint16(header[38:40], s.FootprintYMdeg)
	// bytes 40:48 reserved, left zero
	buf.Write(header)

	for _, c := range s.PerLevelCounts {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], c)
		buf.Write(b[:])
	}

	for _, v := range s.Voxels {
		var rec [recordBytesV3]byte
		binary.LittleEndian.PutUint16(rec[0:2], uint16(v.XNm100))
		binary.LittleEndian.PutUint16(rec[2:4], uint16(v.ZNm100))
		binary.LittleEndian.PutUint16(rec[4:6], v.BottomFeet)
		binary.LittleEndian.PutUint16(rec[6:8], v.TopFeet)
		binary.LittleEndian.PutUint16(rec[8:10], uint16(v.DbzTenths))
		rec[10] = byte(v.ThermoPhase)
		rec[11] = byte(v.SurfacePhase)
		binary.LittleEndian.PutUint16(rec[12:14], v.SpanX)
		binary.LittleEndian.PutUint16(rec[14:16], v.SpanY)
		// bytes 16:20 reserved, left zero
		buf.Write(rec[:])
	}

	return buf.Bytes(), nil
}

// Decode parses a v3 (or v2-compatible) wire payload back into voxel
// records plus header metadata. Structural round-trip with Encode is
// exact for all v3 fields.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) < headerBytes {
		return nil, fmt.Errorf("snapshot: truncated header (%d bytes)", len(data))
	}
	if string(data[0:4]) != wireMagic {
		return nil, fmt.Errorf("snapshot: bad magic %q", data[0:4])
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("snapshot: unsupported version %d", version)
	}
	hdrBytes := binary.LittleEndian.Uint16(data[6:8])
	voxelCount := binary.LittleEndian.Uint32(data[12:16])
	nLayers := binary.LittleEndian.Uint16(data[16:18])
	recBytes := binary.LittleEndian.Uint16(data[18:20])
	generatedAt := time.UnixMilli(int64(binary.LittleEndian.Uint64(data[20:28]))).UTC()
	scanTime := time.UnixMilli(int64(binary.LittleEndian.Uint64(data[28:36]))).UTC()
	fpx := binary.LittleEndian.Uint16(data[36:38])
	fpy := binary.LittleEndian.Uint16(data[38:40])

	if recBytes < 20 {
		return nil, fmt.Errorf("snapshot: record_bytes %d below minimum 20", recBytes)
	}

	off := int(hdrBytes)
	levelCountsEnd := off + int(nLayers)*4
	if levelCountsEnd > len(data) {
		return nil, fmt.Errorf("snapshot: truncated level-count table")
	}
	var perLevel [layerCount]uint32
	for i := 0; i < int(nLayers) && i < layerCount; i++ {
		perLevel[i] = binary.LittleEndian.Uint32(data[off+i*4 : off+i*4+4])
	}
	off = levelCountsEnd

	voxels := make([]brick.Voxel, 0, voxelCount)
	for i := uint32(0); i < voxelCount; i++ {
		start := off + int(i)*int(recBytes)
		end := start + int(recBytes)
		if end > len(data) {
			return nil, fmt.Errorf("snapshot: truncated voxel record %d", i)
		}
		rec := data[start:end]
		v := brick.Voxel{
			XNm100:     int16(binary.LittleEndian.Uint16(rec[0:2])),
			ZNm100:     int16(binary.LittleEndian.Uint16(rec[2:4])),
			BottomFeet: binary.LittleEndian.Uint16(rec[4:6]),
			TopFeet:    binary.LittleEndian.Uint16(rec[6:8]),
			DbzTenths:  int16(binary.LittleEndian.Uint16(rec[8:10])),
			ThermoPhase: phaseFromByte(rec[10]),
			SpanX:      binary.LittleEndian.Uint16(rec[12:14]),
			SpanY:      binary.LittleEndian.Uint16(rec[14:16]),
		}
		if version == 3 {
			v.SurfacePhase = phaseFromByte(rec[11])
		} else {
			v.SurfacePhase = v.ThermoPhase
		}
		voxels = append(voxels, v)
	}

	return &Snapshot{
		ScanTime:       scanTime,
		GeneratedAt:    generatedAt,
		FootprintXMdeg: fpx,
		FootprintYMdeg: fpy,
		PerLevelCounts: perLevel,
		Voxels:         voxels,
	}, nil
}

func phaseFromByte(b byte) phase.Phase {
	return phase.Phase(b)
}
