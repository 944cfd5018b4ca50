package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execEngine struct {
	cmd []string
}

type execRequest struct {
	Tokens []int64     `json:"tokens"`
	Styles [][]float32 `json:"styles"`
	Speed  float32     `json:"speed"`
}

type execResponse struct {
	Samples []float32 `json:"samples"`
}

// NewExecEngine adapts an external inference runner invoked once per call:
// JSON request on stdin, JSON samples on stdout. The handle lock already
// serializes calls, so the adapter itself keeps no state.
func NewExecEngine(command string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Infer(ctx context.Context, tokens []int64, styles [][]float32, speed float32) ([]float32, error) {
	input, err := json.Marshal(execRequest{Tokens: tokens, Styles: styles, Speed: speed})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("engine command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	return resp.Samples, nil
}
