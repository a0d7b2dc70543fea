// Package runner executes untrusted code snippets inside short-lived
// containers. Each supported language maps to an image and a run
// command; the whole execution is bounded by a per-language timeout.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/jacques-ia/relais/internal/logger"
)

// Execution status values persisted with each run
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// ErrUnsupportedLanguage rejects languages without a configuration
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language describes how one language is executed
type Language struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Extension string        `json:"extension"`
	Image     string        `json:"-"`
	Command   string        `json:"-"`
	Timeout   time.Duration `json:"-"`
}

// Result is the outcome of one execution
type Result struct {
	Output   string
	Error    string
	Status   string
	Duration time.Duration
}

var languages = map[string]Language{
	"javascript": {ID: "javascript", Name: "JavaScript", Extension: ".js", Image: "node:18-alpine", Command: "node /work/main.js", Timeout: 10 * time.Second},
	"python":     {ID: "python", Name: "Python", Extension: ".py", Image: "python:3.11-alpine", Command: "python /work/main.py", Timeout: 10 * time.Second},
	"java":       {ID: "java", Name: "Java", Extension: ".java", Image: "openjdk:17-alpine", Command: "cd /work && javac Main.java && java Main", Timeout: 15 * time.Second},
	"cpp":        {ID: "cpp", Name: "C++", Extension: ".cpp", Image: "gcc:alpine", Command: "cd /work && g++ -o main main.cpp && ./main", Timeout: 15 * time.Second},
	"go":         {ID: "go", Name: "Go", Extension: ".go", Image: "golang:alpine", Command: "go run /work/main.go", Timeout: 10 * time.Second},
	"rust":       {ID: "rust", Name: "Rust", Extension: ".rs", Image: "rust:alpine", Command: "cd /work && rustc main.rs && ./main", Timeout: 20 * time.Second},
}

// Languages lists the supported languages, sorted by id
func Languages() []Language {
	out := make([]Language, 0, len(languages))
	for _, lang := range languages {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Supported reports whether a language id has a configuration
func Supported(language string) bool {
	_, ok := languages[language]
	return ok
}

// execFunc runs a prepared command and returns combined stdout, stderr
// and the process error. Replaced in tests.
type execFunc func(ctx context.Context, lang Language, code, input string) (string, string, error)

// Runner executes code snippets
type Runner struct {
	execute execFunc
}

// New creates a Runner backed by the docker CLI
func New() *Runner {
	return &Runner{execute: dockerExec}
}

// Run executes code for the given language. The context bounds the whole
// call; the per-language timeout applies on top of it.
func (r *Runner) Run(ctx context.Context, code, language, input string) (*Result, error) {
	lang, ok := languages[language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code cannot be empty")
	}

	runCtx, cancel := context.WithTimeout(ctx, lang.Timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := r.execute(runCtx, lang, code, input)
	elapsed := time.Since(start)

	res := &Result{
		Output:   stdout,
		Error:    stderr,
		Duration: elapsed,
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		res.Status = StatusTimeout
		if res.Error == "" {
			res.Error = fmt.Sprintf("execution exceeded %s", lang.Timeout)
		}
	case err != nil:
		res.Status = StatusError
		if res.Error == "" {
			res.Error = err.Error()
		}
	default:
		res.Status = StatusSuccess
	}

	logger.Debug("Executed %s snippet in %s (status: %s)", language, elapsed, res.Status)
	return res, nil
}

// dockerExec pipes the snippet into a disposable container. The code
// arrives on stdin and is written to /work by the bootstrap shell so no
// host filesystem mount is needed.
func dockerExec(ctx context.Context, lang Language, code, input string) (string, string, error) {
	filename := "main" + lang.Extension
	if lang.ID == "java" {
		filename = "Main.java"
	}

	bootstrap := fmt.Sprintf(
		"mkdir -p /work && cat > /work/%s << 'RELAIS_EOF'\n%s\nRELAIS_EOF\n%s",
		filename, code, lang.Command)

	args := []string{
		"run", "--rm", "-i",
		"--network", "none",
		"--memory", "128m",
		"--cpus", "0.5",
		lang.Image,
		"sh", "-c", bootstrap,
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
