package phoneme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execPhonemizer struct {
	cmd []string
}

type execRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type execResponse struct {
	Phonemes string `json:"phonemes"`
}

// NewExecPhonemizer runs an external converter once per call: the request is
// written to stdin as JSON and a JSON response is read from stdout. Callers
// are expected to wrap the result with Gated.
func NewExecPhonemizer(command string) (Phonemizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse phonemizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("phonemizer command empty")
	}
	return &execPhonemizer{cmd: args}, nil
}

func (p *execPhonemizer) Phonemize(ctx context.Context, text, language string) (string, error) {
	input, err := json.Marshal(execRequest{Text: text, Language: language})
	if err != nil {
		return "", err
	}

	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("phonemizer command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode phonemizer response: %w", err)
	}
	return resp.Phonemes, nil
}
