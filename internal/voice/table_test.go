package voice

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func bankOf(value float32, rows int) [][]float32 {
	bank := make([][]float32, rows)
	for i := range bank {
		row := make([]float32, VectorSize)
		for j := range row {
			row[j] = value
		}
		bank[i] = row
	}
	return bank
}

func testTable() *Table {
	return NewTable(map[string][][]float32{
		"ida":  bankOf(1.0, 4),
		"theo": bankOf(2.0, 4),
	})
}

func TestResolveSingleName(t *testing.T) {
	tbl := testTable()
	vec, err := tbl.Resolve("ida", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != VectorSize || vec[0] != 1.0 {
		t.Fatalf("unexpected vector: len=%d first=%f", len(vec), vec[0])
	}
}

func TestResolveUnknownSingleNameFails(t *testing.T) {
	tbl := testTable()
	if _, err := tbl.Resolve("nobody", 0); !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
	if err := tbl.Validate("nobody"); !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice from Validate, got %v", err)
	}
	if err := tbl.Validate("ida"); err != nil {
		t.Fatalf("expected valid name, got %v", err)
	}
}

func TestResolveBlendWeightedSum(t *testing.T) {
	tbl := testTable()
	vec, err := tbl.Resolve("ida.5+theo.5", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.5*1.0 + 0.5*2.0 = 1.5 component-wise, no renormalization.
	for i, v := range vec {
		if math.Abs(float64(v)-1.5) > 1e-5 {
			t.Fatalf("component %d: expected 1.5, got %f", i, v)
		}
	}
}

func TestResolveBlendNotRenormalized(t *testing.T) {
	tbl := testTable()
	vec, err := tbl.Resolve("ida.9+theo.9", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.9*1.0 + 0.9*2.0 = 2.7: legitimately larger than either input.
	if math.Abs(float64(vec[0])-2.7) > 1e-5 {
		t.Fatalf("expected 2.7, got %f", vec[0])
	}
}

func TestResolveBlendSkipsMissingComponent(t *testing.T) {
	tbl := testTable()
	vec, err := tbl.Resolve("ida.5+ghost.5", 0)
	if err != nil {
		t.Fatalf("blend with missing component must not fail: %v", err)
	}
	if math.Abs(float64(vec[0])-0.5) > 1e-5 {
		t.Fatalf("expected only ida contribution 0.5, got %f", vec[0])
	}
}

func TestResolveBlendIgnoresUnparsableWeight(t *testing.T) {
	tbl := testTable()
	vec, err := tbl.Resolve("ida.x+theo.5", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(float64(vec[0])-1.0) > 1e-5 {
		t.Fatalf("expected only theo contribution 1.0, got %f", vec[0])
	}
}

func TestResolveClampsTokenLength(t *testing.T) {
	tbl := testTable()
	if _, err := tbl.Resolve("ida", 999); err != nil {
		t.Fatalf("expected clamped row lookup, got %v", err)
	}
	if _, err := tbl.Resolve("ida", -1); err != nil {
		t.Fatalf("expected clamped row lookup, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	tbl := testTable()
	if got := tbl.Names(); !reflect.DeepEqual(got, []string{"ida", "theo"}) {
		t.Fatalf("unexpected names: %v", got)
	}
	if tbl.Count() != 2 {
		t.Fatalf("unexpected count: %d", tbl.Count())
	}
}

func TestLoadFromFile(t *testing.T) {
	raw := map[string][][][]float32{
		"mona": {
			{make([]float32, VectorSize)},
			{make([]float32, VectorSize)},
		},
	}
	raw["mona"][1][0][3] = 0.25

	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "voices.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	vec, err := tbl.Resolve("mona", 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if vec[3] != 0.25 {
		t.Fatalf("expected row 1 component 3 = 0.25, got %f", vec[3])
	}
}

func TestLoadEmptyTableFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty voice table")
	}
}
