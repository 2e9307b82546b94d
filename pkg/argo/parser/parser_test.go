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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
)

// testVariable describes one dictionary entry for the fixture builder.
type testVariable struct {
	name string
	fill float64
}

// testLevel carries one raw value per variable declared in the
// fixture's dictionary, in the same order.
type testLevel struct {
	values []float64
	qcs    []uint8
}

// testProfile is one fixture profile.
type testProfile struct {
	cycleNumber int32
	julianDay   float64
	lat, lon    float64
	dataMode    byte
	levels      []testLevel
}

// buildFixture assembles a minimal well-formed container matching the
// layout parser.go decodes, so the round-trip tests exercise Decode
// without depending on a real ARGO file being present anywhere.
func buildFixture(t *testing.T, ft featureType, platform, wmo string, floatType floatTypeCode,
	program string, julianFill float64, vars []testVariable, profiles []testProfile) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(magic[:])
	must(t, binary.Write(&buf, binary.BigEndian, formatVersion))
	must(t, binary.Write(&buf, binary.BigEndian, uint8(ft)))

	writeFixedString(t, &buf, platform, 8)
	writeFixedString(t, &buf, wmo, 8)
	must(t, binary.Write(&buf, binary.BigEndian, uint8(floatType)))

	must(t, binary.Write(&buf, binary.BigEndian, uint16(len(program))))
	buf.WriteString(program)
	must(t, binary.Write(&buf, binary.BigEndian, julianFill))

	must(t, binary.Write(&buf, binary.BigEndian, uint16(len(vars))))
	for _, v := range vars {
		must(t, binary.Write(&buf, binary.BigEndian, uint8(len(v.name))))
		buf.WriteString(v.name)
		must(t, binary.Write(&buf, binary.BigEndian, v.fill))
	}

	must(t, binary.Write(&buf, binary.BigEndian, uint32(len(profiles))))
	for _, p := range profiles {
		must(t, binary.Write(&buf, binary.BigEndian, p.cycleNumber))
		must(t, binary.Write(&buf, binary.BigEndian, p.julianDay))
		must(t, binary.Write(&buf, binary.BigEndian, p.lat))
		must(t, binary.Write(&buf, binary.BigEndian, p.lon))
		must(t, binary.Write(&buf, binary.BigEndian, p.dataMode))
		must(t, binary.Write(&buf, binary.BigEndian, uint32(len(p.levels))))
		for _, lvl := range p.levels {
			for i := range lvl.values {
				must(t, binary.Write(&buf, binary.BigEndian, lvl.values[i]))
				must(t, binary.Write(&buf, binary.BigEndian, lvl.qcs[i]))
			}
		}
	}

	return buf.Bytes()
}

func writeFixedString(t *testing.T, buf *bytes.Buffer, s string, width int) {
	t.Helper()
	b := make([]byte, width)
	copy(b, s)
	for i := len(s); i < width; i++ {
		b[i] = ' '
	}
	buf.Write(b)
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("fixture build: %v", err)
	}
}

func coreVariables() []testVariable {
	return []testVariable{
		{"PRES", -999.0},
		{"TEMP", -999.0},
		{"PSAL", -999.0},
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	data := buildFixture(t, featureTypeProfile, "6902746", "6902746", floatTypeCodeCore,
		"ARGO-EU", -999.0, coreVariables(), []testProfile{
			{
				cycleNumber: 12,
				julianDay:   27375.5,
				lat:         44.5,
				lon:         -12.25,
				dataMode:    'R',
				levels: []testLevel{
					{values: []float64{10.1, 18.2, 35.6}, qcs: []uint8{'1', '1', '1'}},
					{values: []float64{-999.0, 17.9, 35.5}, qcs: []uint8{'9', '1', '2'}},
				},
			},
		})

	result, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if result.Float.PlatformNumber != "6902746" {
		t.Errorf("platform number = %q", result.Float.PlatformNumber)
	}
	if result.Float.FloatType != models.FloatTypeCore {
		t.Errorf("float type = %v", result.Float.FloatType)
	}
	if len(result.Profiles) != 1 {
		t.Fatalf("profiles = %d, want 1", len(result.Profiles))
	}

	p := result.Profiles[0]
	if p.CycleNumber != 12 {
		t.Errorf("cycle number = %d", p.CycleNumber)
	}
	if p.PositionInvalid {
		t.Errorf("expected valid position for lat=44.5 lon=-12.25")
	}
	if p.TimestampMissing {
		t.Errorf("expected a resolvable timestamp")
	}
	if p.Timestamp == nil {
		t.Fatalf("timestamp is nil")
	}

	if len(p.Measurements) != 2 {
		t.Fatalf("levels = %d, want 2", len(p.Measurements))
	}

	first := p.Measurements[0]
	if first.Pressure == nil || *first.Pressure != 10.1 {
		t.Errorf("pressure = %v", first.Pressure)
	}
	if first.PressureQC != 1 {
		t.Errorf("pressure qc = %d, want 1 (decoded from ASCII '1', not raw byte 0x31)", first.PressureQC)
	}

	second := p.Measurements[1]
	if second.Pressure != nil {
		t.Errorf("expected fill-valued pressure to decode to nil, got %v", *second.Pressure)
	}
	if second.PressureQC != 9 {
		t.Errorf("pressure qc = %d, want 9", second.PressureQC)
	}
}

func TestDecodeRejectsTrajectoryFiles(t *testing.T) {
	data := buildFixture(t, featureTypeTrajectory, "6902746", "6902746", floatTypeCodeCore,
		"ARGO-EU", -999.0, coreVariables(), nil)

	_, err := Decode(bytes.NewReader(data))
	var unsupported *UnsupportedFileError
	if !asUnsupported(err, &unsupported) {
		t.Fatalf("expected UnsupportedFileError, got %v", err)
	}
	if unsupported.FeatureType != "trajectory" {
		t.Errorf("feature type = %q", unsupported.FeatureType)
	}
}

func TestDecodeRejectsMissingMandatoryVariable(t *testing.T) {
	vars := []testVariable{{"PRES", -999.0}, {"TEMP", -999.0}} // PSAL missing
	data := buildFixture(t, featureTypeProfile, "6902746", "6902746", floatTypeCodeCore,
		"ARGO-EU", -999.0, vars, nil)

	_, err := Decode(bytes.NewReader(data))
	var missing *MissingVariableError
	if !asMissing(err, &missing) {
		t.Fatalf("expected MissingVariableError, got %v", err)
	}
	if missing.Variable != "PSAL" {
		t.Errorf("missing variable = %q, want PSAL", missing.Variable)
	}
}

func TestDecodeFlagsFillSentinelTimestamp(t *testing.T) {
	data := buildFixture(t, featureTypeProfile, "6902746", "6902746", floatTypeCodeCore,
		"ARGO-EU", -999.0, coreVariables(), []testProfile{
			{
				cycleNumber: 1,
				julianDay:   -999.0,
				lat:         0,
				lon:         0,
				dataMode:    'R',
				levels:      []testLevel{{values: []float64{1, 2, 3}, qcs: []uint8{'1', '1', '1'}}},
			},
		})

	result, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p := result.Profiles[0]
	if !p.TimestampMissing {
		t.Errorf("expected TimestampMissing for julian day equal to fill sentinel")
	}
	if p.Timestamp != nil {
		t.Errorf("expected nil timestamp, got %v", p.Timestamp)
	}
}

func TestDecodeFlagsInvalidPosition(t *testing.T) {
	data := buildFixture(t, featureTypeProfile, "6902746", "6902746", floatTypeCodeCore,
		"ARGO-EU", -999.0, coreVariables(), []testProfile{
			{
				cycleNumber: 1,
				julianDay:   100,
				lat:         91.0,
				lon:         200.0,
				dataMode:    'R',
				levels:      []testLevel{{values: []float64{1, 2, 3}, qcs: []uint8{'1', '1', '1'}}},
			},
		})

	result, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !result.Profiles[0].PositionInvalid {
		t.Errorf("expected PositionInvalid for lat=91, lon=200")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := []byte{'X', 'X', 'X', 'X', 1, 0}
	_, err := Decode(bytes.NewReader(data))
	if err == nil {
		t.Fatalf("expected an error for bad magic")
	}
}

func asUnsupported(err error, target **UnsupportedFileError) bool {
	u, ok := err.(*UnsupportedFileError)
	if ok {
		*target = u
	}
	return ok
}

func asMissing(err error, target **MissingVariableError) bool {
	m, ok := err.(*MissingVariableError)
	if ok {
		*target = m
	}
	return ok
}
