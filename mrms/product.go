// mrms/product.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package mrms holds the data-model types shared across ingest, scheduling,
// phase resolution, and serving: product identifiers, the 33 altitude
// levels, and the decoded-grid representation a GRIB2 message yields.
package mrms

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Family string

const (
	ReflectivityQC      Family = "ReflectivityQC"
	Zdr                 Family = "Zdr"
	RhoHV               Family = "RhoHV"
	PrecipFlag          Family = "PrecipFlag"
	FreezingLevelHeight Family = "FreezingLevelHeight"
	WetBulbTemp         Family = "WetBulbTemp"
	SurfaceTemp         Family = "SurfaceTemp"
	BrightBandTop       Family = "BrightBandTop"
	BrightBandBottom    Family = "BrightBandBottom"
	RadarQualityIndex   Family = "RadarQualityIndex"
	EchoTop18           Family = "EchoTop18"
	EchoTop30           Family = "EchoTop30"
	EchoTop50           Family = "EchoTop50"
	EchoTop60           Family = "EchoTop60"
)

// SurfaceLevel is the sentinel altitude tag for surface/aux products that
// are not part of the 33-level reflectivity stack.
const SurfaceLevel = "00.00"

// Levels lists the 33 altitude tags used by ReflectivityQC, Zdr, and
// RhoHV, in ascending order.
var Levels = []string{
	"00.50", "00.75", "01.00", "01.25", "01.50", "01.75", "02.00", "02.25",
	"02.50", "02.75", "03.00", "03.50", "04.00", "04.50", "05.00", "05.50",
	"06.00", "06.50", "07.00", "07.50", "08.00", "08.50", "09.00", "10.00",
	"11.00", "12.00", "13.00", "14.00", "15.00", "16.00", "17.00", "18.00",
	"19.00",
}

const NumLevels = 33

func init() {
	if len(Levels) != NumLevels {
		panic(fmt.Sprintf("mrms: expected %d levels, got %d", NumLevels, len(Levels)))
	}
}

// LevelFeet converts a level tag ("01.25") to its altitude in feet.
func LevelFeet(level string) (float64, error) {
	km, err := strconv.ParseFloat(level, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid level tag: %w", level, err)
	}
	return km * 3280.8399, nil
}

// LevelIndex returns the index of level within Levels, or -1 if it is not
// one of the 33 reflectivity levels.
func LevelIndex(level string) int {
	for i, l := range Levels {
		if l == level {
			return i
		}
	}
	return -1
}

// ProductKey identifies one published object: a family, an altitude level
// (or SurfaceLevel for column-wide products), and a scan time.
type ProductKey struct {
	Family   Family
	Level    string
	ScanTime time.Time
}

func (k ProductKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Family, k.Level, k.ScanTime.Format("20060102-150405"))
}

// ObjectKey renders k as the upstream object key ParseObjectKey parses,
// the inverse mapping the object store fetch path needs to turn a ready
// ProductKey back into a key to request.
func (k ProductKey) ObjectKey() string {
	dir := string(k.Family)
	if k.Level != SurfaceLevel {
		dir += "_" + k.Level
	}
	return fmt.Sprintf("%s/%s.grib2.gz", dir, k.ScanTime.UTC().Format("20060102-150405"))
}

// ParseObjectKey parses an upstream object key of the form
// "<Family>_<Level>/<YYYYMMDD>-<HHMMSS>.grib2[.gz]" into a ProductKey.
// It is intentionally permissive about the file extension and trailing
// path components, and returns an error for anything it cannot place
// into one of the families above.
func ParseObjectKey(key string) (ProductKey, error) {
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[:i] + "!" + base[i+1:]
	}
	parts := strings.SplitN(base, "!", 2)
	if len(parts) != 2 {
		return ProductKey{}, fmt.Errorf("%s: malformed object key", key)
	}
	familyLevel, fileName := parts[0], parts[1]

	family, level, err := splitFamilyLevel(familyLevel)
	if err != nil {
		return ProductKey{}, fmt.Errorf("%s: %w", key, err)
	}

	scanTime, err := parseScanTime(fileName)
	if err != nil {
		return ProductKey{}, fmt.Errorf("%s: %w", key, err)
	}

	return ProductKey{Family: family, Level: level, ScanTime: scanTime}, nil
}

func splitFamilyLevel(s string) (Family, string, error) {
	idx := strings.LastIndex(s, "_")
	if idx < 0 {
		f, ok := knownFamily(s)
		if !ok {
			return "", "", fmt.Errorf("unrecognized family %q", s)
		}
		return f, SurfaceLevel, nil
	}
	famStr, levelStr := s[:idx], s[idx+1:]
	f, ok := knownFamily(famStr)
	if !ok {
		return "", "", fmt.Errorf("unrecognized family %q", famStr)
	}
	if _, err := strconv.ParseFloat(levelStr, 64); err != nil {
		return "", "", fmt.Errorf("invalid level %q", levelStr)
	}
	return f, levelStr, nil
}

func knownFamily(s string) (Family, bool) {
	switch Family(s) {
	case ReflectivityQC, Zdr, RhoHV, PrecipFlag, FreezingLevelHeight, WetBulbTemp,
		SurfaceTemp, BrightBandTop, BrightBandBottom, RadarQualityIndex,
		EchoTop18, EchoTop30, EchoTop50, EchoTop60:
		return Family(s), true
	default:
		return "", false
	}
}

func parseScanTime(fileName string) (time.Time, error) {
	name := fileName
	for _, suffix := range []string{".grib2.gz", ".grib2", ".gz"} {
		name = strings.TrimSuffix(name, suffix)
	}
	t, err := time.Parse("20060102-150405", name)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: unparseable scan time: %w", fileName, err)
	}
	return t.UTC(), nil
}

// IsAltitudeFamily reports whether f is one of the three families that
// carry the full 33-level stack.
func IsAltitudeFamily(f Family) bool {
	return f == ReflectivityQC || f == Zdr || f == RhoHV
}

// IsEchoTopFamily reports whether f is one of the four echo-top threshold
// products.
func IsEchoTopFamily(f Family) bool {
	switch f {
	case EchoTop18, EchoTop30, EchoTop50, EchoTop60:
		return true
	default:
		return false
	}
}

// EchoTopThresholdDbz returns the dBZ threshold for an echo-top family.
func EchoTopThresholdDbz(f Family) int {
	switch f {
	case EchoTop18:
		return 18
	case EchoTop30:
		return 30
	case EchoTop50:
		return 50
	case EchoTop60:
		return 60
	default:
		return 0
	}
}
