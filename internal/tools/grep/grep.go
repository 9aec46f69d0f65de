// Package grep implements the budgeted search tool: a subprocess-backed
// grep whose output is capped at 50KB, falling back through content mode ->
// files_with_matches -> bisected truncation as the cascade in the tool
// plane's search-result budgeting contract requires.
package grep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/nexus-ral/nexus/internal/agent"
	"github.com/nexus-ral/nexus/internal/tools/files"
)

const (
	budgetBytes  = 50_000
	maxBuffer    = 10 << 20 // 10 MB
	subprocessTO = 30 * time.Second
)

// Mode selects the grep tool's output shape.
type Mode string

const (
	ModeContent          Mode = "content"
	ModeFilesWithMatches Mode = "files_with_matches"
	ModeCount            Mode = "count"
)

// Tool is the budgeted search tool.
type Tool struct {
	resolver files.Resolver
	workRoot string
}

// Config scopes the tool to a workspace, matching the files package.
type Config struct {
	Workspace string
	AgentHome string
}

// New builds a grep Tool scoped to cfg's roots.
func New(cfg Config) *Tool {
	roots := make([]string, 0, 2)
	if cfg.Workspace != "" {
		roots = append(roots, cfg.Workspace)
	}
	if cfg.AgentHome != "" {
		roots = append(roots, cfg.AgentHome)
	}
	return &Tool{resolver: files.Resolver{Roots: roots}, workRoot: cfg.Workspace}
}

func (t *Tool) Name() string { return "grep" }

func (t *Tool) Description() string {
	return "Search file contents for a pattern, budgeted to a 50KB response."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory or file to search (defaults to workspace root).",
			},
			"output_mode": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"content", "files_with_matches", "count"},
				"description": "content, files_with_matches, or count.",
			},
			"head_limit": map[string]interface{}{
				"type":        "integer",
				"description": "Limit to the first N matches (0 = unlimited).",
				"minimum":     0,
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type input struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path"`
	OutputMode Mode   `json:"output_mode"`
	HeadLimit  int    `json:"head_limit"`
}

// Execute runs the search and applies the budgeting cascade described on
// the package. Pagination (head_limit) is applied before the budget check,
// so a head-limited request that still exceeds the cap falls back same as
// an unbounded one.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return toolError("pattern is required"), nil
	}
	if in.OutputMode == "" {
		in.OutputMode = ModeFilesWithMatches
	}

	searchPath := in.Path
	if searchPath == "" {
		searchPath = t.workRoot
	} else if resolved, err := t.resolver.Resolve(searchPath, false); err == nil {
		searchPath = resolved
	} else {
		return toolError(err.Error()), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, subprocessTO)
	defer cancel()

	out, overflowed, err := runGrep(runCtx, in.Pattern, searchPath, in.OutputMode)
	if err != nil {
		return toolError(fmt.Sprintf("grep execution failed: %v", err)), nil
	}

	lines := splitNonEmpty(out)
	if in.HeadLimit > 0 && len(lines) > in.HeadLimit {
		lines = lines[:in.HeadLimit]
	}
	body := strings.Join(lines, "\n")

	// Modes files_with_matches and count are naturally bounded (one line
	// per file, or a single number) and never trigger the fallback cascade.
	if in.OutputMode != ModeContent {
		if len(body) > budgetBytes {
			body = body[:budgetBytes]
		}
		return &agent.ToolResult{Content: body}, nil
	}

	if overflowed {
		fallback, ferr := filesWithMatchesFallback(runCtx, in.Pattern, searchPath, "maxBuffer overflow from search process")
		if ferr != nil {
			return toolError(fmt.Sprintf("grep fallback failed: %v", ferr)), nil
		}
		return &agent.ToolResult{Content: fallback}, nil
	}

	if len(body) <= budgetBytes {
		return &agent.ToolResult{Content: body}, nil
	}

	fallback, ferr := filesWithMatchesFallback(runCtx, in.Pattern, searchPath, "Content output would exceed 50KB limit")
	if ferr != nil {
		return toolError(fmt.Sprintf("grep fallback failed: %v", ferr)), nil
	}
	if len(fallback) <= budgetBytes {
		return &agent.ToolResult{Content: fallback}, nil
	}
	return &agent.ToolResult{Content: bisectTruncate(fallback)}, nil
}

// runGrep shells out to grep -rn, capping the amount of stdout it will
// buffer at maxBuffer; exceeding that cap is reported as overflow rather
// than returned truncated, matching the distinct "maxBuffer overflow"
// fallback path.
func runGrep(ctx context.Context, pattern, path string, mode Mode) (string, bool, error) {
	args := []string{"-r", "-n", "-E"}
	switch mode {
	case ModeFilesWithMatches:
		args = append(args, "-l")
	case ModeCount:
		args = append(args, "-c")
	}
	args = append(args, pattern, path)

	cmd := exec.CommandContext(ctx, "grep", args...)
	var stdout bytes.Buffer
	limited := &limitedWriter{buf: &stdout, limit: maxBuffer}
	cmd.Stdout = limited
	cmd.Stderr = nil

	err := cmd.Run()
	if limited.overflowed {
		return stdout.String(), true, nil
	}
	// grep exits 1 when there are no matches; that's success, not an error.
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return stdout.String(), false, nil
}

func filesWithMatchesFallback(ctx context.Context, pattern, path, notePrefix string) (string, error) {
	out, overflowed, err := runGrep(ctx, pattern, path, ModeFilesWithMatches)
	if err != nil {
		return "", err
	}
	files := dedupeLines(splitNonEmpty(out))
	body := notePrefix + "; matching files:\n" + strings.Join(files, "\n")
	if overflowed || len(body) > budgetBytes {
		return bisectTruncate(body), nil
	}
	return body, nil
}

// bisectTruncate halves the line count repeatedly until the joined body
// fits the budget, then appends a truncation note.
func bisectTruncate(body string) string {
	lines := strings.Split(body, "\n")
	for len(strings.Join(lines, "\n")) > budgetBytes-64 && len(lines) > 1 {
		lines = lines[:len(lines)/2]
	}
	out := strings.Join(lines, "\n") + "\n... (truncated: output exceeded 50KB limit)"
	if len(out) > budgetBytes {
		out = out[:budgetBytes]
	}
	return out
}

func dedupeLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// limitedWriter caps how many bytes it will accept before flagging overflow,
// mirroring a maxBuffer-limited subprocess pipe.
type limitedWriter struct {
	buf        *bytes.Buffer
	limit      int
	overflowed bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.overflowed {
		return len(p), nil
	}
	if w.buf.Len()+len(p) > w.limit {
		w.overflowed = true
		remaining := w.limit - w.buf.Len()
		if remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		return len(p), nil
	}
	return w.buf.Write(p)
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
