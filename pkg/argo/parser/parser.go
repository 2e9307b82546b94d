/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package parser

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
)

// variableDict entry: the per-variable fill value this file declared,
// read once and applied deterministically to every level's raw value.
type variableDict struct {
	fillValue float64
}

// Parse opens the file at path and decodes it into a ParseResult. It
// performs no automatic scaling: every fill-valued scalar is read from
// the file's own declared metadata and replaced with nil, never with
// zero or the sentinel itself. Parse does not retry; the caller (the
// orchestrator) classifies and retries at the job level.
func Parse(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &MalformedFileError{Reason: "open file", Cause: err}
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}

// Decode reads a well-formed ARGO container from r. Exported
// separately from Parse so tests can feed an in-memory buffer instead
// of a file on disk.
func Decode(r io.Reader) (*ParseResult, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, &MalformedFileError{Reason: "read magic", Cause: err}
	}
	if gotMagic != magic {
		return nil, &MalformedFileError{Reason: fmt.Sprintf("bad magic %q", gotMagic)}
	}

	var version uint8
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, &MalformedFileError{Reason: "read version", Cause: err}
	}

	var ft uint8
	if err := binary.Read(r, binary.BigEndian, &ft); err != nil {
		return nil, &MalformedFileError{Reason: "read feature type", Cause: err}
	}
	if featureType(ft) == featureTypeTrajectory {
		return nil, &UnsupportedFileError{FeatureType: featureType(ft).String()}
	}

	header, julianFill, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	varDict, err := readVariableDict(r)
	if err != nil {
		return nil, err
	}
	for _, name := range mandatoryVariables {
		if _, ok := varDict[name]; !ok {
			return nil, &MissingVariableError{Variable: name}
		}
	}

	var numProfiles uint32
	if err := binary.Read(r, binary.BigEndian, &numProfiles); err != nil {
		return nil, &MalformedFileError{Reason: "read profile count", Cause: err}
	}

	profiles := make([]ProfileRecord, 0, numProfiles)
	for i := uint32(0); i < numProfiles; i++ {
		p, err := readProfile(r, varDict, julianFill)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}

	return &ParseResult{Float: *header, Profiles: profiles}, nil
}

func readHeader(r io.Reader) (*FloatHeader, float64, error) {
	var platformRaw, wmoRaw [8]byte
	if _, err := io.ReadFull(r, platformRaw[:]); err != nil {
		return nil, 0, &MalformedFileError{Reason: "read platform number", Cause: err}
	}
	if _, err := io.ReadFull(r, wmoRaw[:]); err != nil {
		return nil, 0, &MalformedFileError{Reason: "read wmo identifier", Cause: err}
	}

	var floatType uint8
	if err := binary.Read(r, binary.BigEndian, &floatType); err != nil {
		return nil, 0, &MalformedFileError{Reason: "read float type", Cause: err}
	}

	program, err := readLengthPrefixedString(r)
	if err != nil {
		return nil, 0, &MalformedFileError{Reason: "read program", Cause: err}
	}

	var julianFill float64
	if err := binary.Read(r, binary.BigEndian, &julianFill); err != nil {
		return nil, 0, &MalformedFileError{Reason: "read julian fill value", Cause: err}
	}

	return &FloatHeader{
		PlatformNumber: strings.TrimSpace(string(platformRaw[:])),
		WMOIdentifier:  strings.TrimSpace(string(wmoRaw[:])),
		FloatType:      decodeFloatType(floatTypeCode(floatType)),
		Program:        program,
	}, julianFill, nil
}

func decodeFloatType(code floatTypeCode) models.FloatType {
	switch code {
	case floatTypeCodeBGC:
		return models.FloatTypeBGC
	case floatTypeCodeDeep:
		return models.FloatTypeDeep
	default:
		return models.FloatTypeCore
	}
}

func readVariableDict(r io.Reader) (map[string]variableDict, error) {
	var numVars uint16
	if err := binary.Read(r, binary.BigEndian, &numVars); err != nil {
		return nil, &MalformedFileError{Reason: "read variable count", Cause: err}
	}

	dict := make(map[string]variableDict, numVars)
	for i := uint16(0); i < numVars; i++ {
		name, err := readByteLengthPrefixedString(r)
		if err != nil {
			return nil, &MalformedFileError{Reason: "read variable name", Cause: err}
		}
		var fill float64
		if err := binary.Read(r, binary.BigEndian, &fill); err != nil {
			return nil, &MalformedFileError{Reason: "read variable fill value", Cause: err}
		}
		dict[name] = variableDict{fillValue: fill}
	}
	return dict, nil
}

func readProfile(r io.Reader, varDict map[string]variableDict, julianFill float64) (*ProfileRecord, error) {
	var cycleNumber int32
	if err := binary.Read(r, binary.BigEndian, &cycleNumber); err != nil {
		return nil, &MalformedFileError{Reason: "read cycle number", Cause: err}
	}
	var julianDay float64
	if err := binary.Read(r, binary.BigEndian, &julianDay); err != nil {
		return nil, &MalformedFileError{Reason: "read julian day", Cause: err}
	}
	var lat, lon float64
	if err := binary.Read(r, binary.BigEndian, &lat); err != nil {
		return nil, &MalformedFileError{Reason: "read latitude", Cause: err}
	}
	if err := binary.Read(r, binary.BigEndian, &lon); err != nil {
		return nil, &MalformedFileError{Reason: "read longitude", Cause: err}
	}
	var dataModeByte uint8
	if err := binary.Read(r, binary.BigEndian, &dataModeByte); err != nil {
		return nil, &MalformedFileError{Reason: "read data mode", Cause: err}
	}
	var numLevels uint32
	if err := binary.Read(r, binary.BigEndian, &numLevels); err != nil {
		return nil, &MalformedFileError{Reason: "read level count", Cause: err}
	}

	levels := make([]MeasurementRecord, 0, numLevels)
	for i := uint32(0); i < numLevels; i++ {
		m, err := readMeasurement(r, varDict, int(i))
		if err != nil {
			return nil, err
		}
		levels = append(levels, *m)
	}

	// Julian value equal to the file's declared fill sentinel means
	// the profile carries no resolvable timestamp.
	timestampMissing := julianDay == julianFill
	var ts *time.Time
	if !timestampMissing {
		t := julianToUTC(julianDay)
		ts = &t
	}

	positionInvalid := lat < -90 || lat > 90 || lon < -180 || lon > 180

	return &ProfileRecord{
		CycleNumber:      int(cycleNumber),
		JulianDay:        julianDay,
		Timestamp:        ts,
		TimestampMissing: timestampMissing,
		Latitude:         lat,
		Longitude:        lon,
		PositionInvalid:  positionInvalid,
		DataMode:         models.DataMode(string(rune(dataModeByte))),
		Measurements:     levels,
	}, nil
}

// julianToUTC converts raw (days since 1950-01-01T00:00:00Z) to an
// absolute UTC instant per SPEC_FULL §4.2.
func julianToUTC(raw float64) time.Time {
	return argoEpoch.Add(time.Duration(raw * float64(24*time.Hour)))
}

func readMeasurement(r io.Reader, varDict map[string]variableDict, levelIndex int) (*MeasurementRecord, error) {
	m := &MeasurementRecord{LevelIndex: levelIndex}

	read := func(name string) (*float64, int, error) {
		dict, ok := varDict[name]
		if !ok {
			return nil, 0, nil
		}
		var raw float64
		if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
			return nil, 0, &MalformedFileError{Reason: fmt.Sprintf("read %s value", name), Cause: err}
		}
		var qcByte uint8
		if err := binary.Read(r, binary.BigEndian, &qcByte); err != nil {
			return nil, 0, &MalformedFileError{Reason: fmt.Sprintf("read %s qc", name), Cause: err}
		}
		qc, err := decodeQC(qcByte)
		if err != nil {
			return nil, 0, &MalformedFileError{Reason: fmt.Sprintf("decode %s qc", name), Cause: err}
		}
		if raw == dict.fillValue {
			return nil, qc, nil
		}
		return &raw, qc, nil
	}

	var err error
	if m.Pressure, m.PressureQC, err = read("PRES"); err != nil {
		return nil, err
	}
	if m.Temperature, m.TemperatureQC, err = read("TEMP"); err != nil {
		return nil, err
	}
	if m.Salinity, m.SalinityQC, err = read("PSAL"); err != nil {
		return nil, err
	}
	if m.DissolvedOxygen, m.DissolvedOxygenQC, err = read("DOXY"); err != nil {
		return nil, err
	}
	if m.Chlorophyll, m.ChlorophyllQC, err = read("CHLA"); err != nil {
		return nil, err
	}
	if m.Nitrate, m.NitrateQC, err = read("NITRATE"); err != nil {
		return nil, err
	}
	if m.PH, m.PHQC, err = read("PH_IN_SITU_TOTAL"); err != nil {
		return nil, err
	}
	if m.Backscatter, m.BackscatterQC, err = read("BBP700"); err != nil {
		return nil, err
	}
	if m.Irradiance, m.IrradianceQC, err = read("DOWNWELLING_IRRADIANCE"); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeQC converts a QC byte to an integer by decoding it as a
// single ASCII character and parsing that character, never by
// directly casting the byte's numeric value (SPEC_FULL §4.2).
func decodeQC(b uint8) (int, error) {
	if b == 0 {
		return 0, nil
	}
	return strconv.Atoi(string(rune(b)))
}

func readLengthPrefixedString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readByteLengthPrefixedString(r io.Reader) (string, error) {
	var n uint8
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// sniffFeatureType reads the feature-type byte from the header of data
// without running a full Decode. Nothing in the repository calls it.
func sniffFeatureType(data []byte) (featureType, error) {
	if len(data) < 6 {
		return 0, &MalformedFileError{Reason: "file too short to contain a header"}
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return 0, &MalformedFileError{Reason: "bad magic"}
	}
	return featureType(data[5]), nil
}
