// Package voice holds the style embedding table that selects a synthesized
// voice identity. Styles are looked up by name, or blended with the
// "name.w+name.w" syntax where each weight digit counts for 0.1.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// VectorSize is the width of a single style conditioning vector.
const VectorSize = 256

// ErrUnknownVoice is returned when a bare voice name has no table entry. A
// missing name inside a blend is skipped instead.
var ErrUnknownVoice = errors.New("unknown voice")

// Table maps voice names to banks of style vectors. Each bank carries one
// vector per token-sequence length; the model expects the row matching the
// chunk's token count. The table is read-only after load and safe to share
// across workers.
type Table struct {
	styles map[string][][]float32
}

// Load reads a voice table from a JSON file shaped as
// {"name": [[...256 floats...], ...], ...} with one row per token length.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices file: %w", err)
	}

	var raw map[string][][][]float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse voices file: %w", err)
	}

	styles := make(map[string][][]float32, len(raw))
	for name, bank := range raw {
		rows := make([][]float32, 0, len(bank))
		for _, frame := range bank {
			row := make([]float32, VectorSize)
			if len(frame) > 0 {
				copy(row, frame[0])
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			continue
		}
		styles[name] = rows
	}
	if len(styles) == 0 {
		return nil, fmt.Errorf("voices file %s contains no styles", path)
	}
	return &Table{styles: styles}, nil
}

// NewTable builds a table from in-memory banks. Intended for tests and
// embedded defaults.
func NewTable(styles map[string][][]float32) *Table {
	return &Table{styles: styles}
}

// Names returns the sorted list of available voice names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.styles))
	for name := range t.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded voices.
func (t *Table) Count() int { return len(t.styles) }

// Validate checks a voice name before any synthesis work is dispatched. A
// bare name must exist. A blend is always accepted: unresolvable components
// are dropped at resolve time.
func (t *Table) Validate(name string) error {
	if strings.Contains(name, "+") {
		return nil
	}
	if _, ok := t.styles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, name)
	}
	return nil
}

// Resolve produces the conditioning vector for a voice name and token count.
// For a blend, each component contributes weight*vector to an accumulated
// sum; the result is deliberately not renormalized, so weights that sum past
// 1.0 scale the output accordingly.
func (t *Table) Resolve(name string, tokenLen int) ([]float32, error) {
	if !strings.Contains(name, "+") {
		bank, ok := t.styles[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVoice, name)
		}
		row := bank[rowIndex(bank, tokenLen)]
		out := make([]float32, VectorSize)
		copy(out, row)
		return out, nil
	}

	blended := make([]float32, VectorSize)
	for _, part := range strings.Split(name, "+") {
		sub, portion, ok := strings.Cut(part, ".")
		if !ok {
			continue
		}
		weight, err := strconv.ParseFloat(portion, 32)
		if err != nil {
			continue
		}
		bank, found := t.styles[sub]
		if !found {
			// A missing blend component changes the timbre but not the
			// outcome of the request.
			continue
		}
		row := bank[rowIndex(bank, tokenLen)]
		w := float32(weight) * 0.1
		for i := range blended {
			blended[i] += row[i] * w
		}
	}
	return blended, nil
}

func rowIndex(bank [][]float32, tokenLen int) int {
	if tokenLen < 0 {
		return 0
	}
	if tokenLen >= len(bank) {
		return len(bank) - 1
	}
	return tokenLen
}
