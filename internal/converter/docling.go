package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxStderrInError caps how much subprocess stderr is folded into an error message.
const maxStderrInError = 2048

// bridgeWaitDelay bounds how long Wait blocks on pipes held open by engine worker processes
// after the bridge itself was killed.
const bridgeWaitDelay = 5 * time.Second

// DoclingOptions configures the Python bridge.
type DoclingOptions struct {
	PythonPath    string
	ScriptPath    string // empty: use the embedded bridge
	ArtifactsPath string // empty: let docling resolve its own cache
	Timeout       time.Duration
}

// DoclingConverter runs docling through the embedded Python bridge.
type DoclingConverter struct {
	opts DoclingOptions
	log  *logrus.Logger
}

// bridgeResponse is the single JSON object the bridge writes on stdout.
type bridgeResponse struct {
	Success       bool              `json:"success"`
	Error         string            `json:"error"`
	Markdown      string            `json:"markdown"`
	Document      map[string]any    `json:"document"`
	ArtifactsPath string            `json:"artifacts_path"`
	Initialized   []string          `json:"initialized"`
	Failed        map[string]string `json:"failed"`
}

// NewDoclingConverter creates a docling-backed converter.
func NewDoclingConverter(opts DoclingOptions, log *logrus.Logger) *DoclingConverter {
	if opts.PythonPath == "" {
		opts.PythonPath = "python3"
	}
	return &DoclingConverter{opts: opts, log: log}
}

// Name returns the backend name.
func (c *DoclingConverter) Name() string { return "docling" }

// Convert converts a local path or URL. Cancelling ctx kills the subprocess.
func (c *DoclingConverter) Convert(ctx context.Context, source string) (*Document, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := c.run(ctx, "convert", "--", source)
	if err != nil {
		return nil, err
	}

	return &Document{
		Markdown:   resp.Markdown,
		Structured: resp.Document,
	}, nil
}

// InitializePipelines initializes the engine pipeline of each format, forcing any lazy model
// download. Formats that fail are reported in the error; the rest are returned.
func (c *DoclingConverter) InitializePipelines(ctx context.Context, formats []string) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}

	resp, err := c.run(ctx, "init", formats...)
	if resp != nil && len(resp.Failed) > 0 {
		for format, reason := range resp.Failed {
			c.log.WithField("format", format).WithField("reason", reason).Warn("Pipeline initialization failed")
		}
	}
	if resp != nil {
		return resp.Initialized, err
	}
	return nil, err
}

// ArtifactsPath returns the directory holding the engine's model artifacts.
func (c *DoclingConverter) ArtifactsPath(ctx context.Context) (string, error) {
	if c.opts.ArtifactsPath != "" {
		return c.opts.ArtifactsPath, nil
	}

	resp, err := c.run(ctx, "artifacts")
	if err != nil {
		return "", err
	}
	if resp.ArtifactsPath == "" {
		return "", errors.New("bridge returned an empty artifacts path")
	}
	return resp.ArtifactsPath, nil
}

// run executes one bridge command and decodes its JSON reply. A reply with success=false is
// returned together with an error carrying the bridge's message.
func (c *DoclingConverter) run(ctx context.Context, command string, args ...string) (*bridgeResponse, error) {
	scriptPath := c.opts.ScriptPath
	if scriptPath == "" {
		var err error
		scriptPath, err = BridgeScriptPath()
		if err != nil {
			return nil, err
		}
	}

	argv := []string{scriptPath}
	if c.opts.ArtifactsPath != "" {
		argv = append(argv, "--artifacts-path", c.opts.ArtifactsPath)
	}
	argv = append(argv, command)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, c.opts.PythonPath, argv...)
	cmd.Env = os.Environ()
	cmd.WaitDelay = bridgeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()

	entry := c.log.WithFields(logrus.Fields{
		"command":     command,
		"duration_ms": time.Since(started).Milliseconds(),
		"stdout_len":  stdout.Len(),
		"stderr_len":  stderr.Len(),
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		entry.WithError(ctxErr).Warn("Docling bridge cancelled")
		return nil, fmt.Errorf("docling %s cancelled: %w", command, ctxErr)
	}

	resp, parseErr := parseBridgeOutput(stdout.Bytes())
	if parseErr != nil {
		entry.WithError(runErr).Error("Docling bridge produced no readable reply")
		if runErr != nil {
			return nil, fmt.Errorf("docling %s failed: %w, stderr: %s", command, runErr, tail(stderr.String(), maxStderrInError))
		}
		return nil, fmt.Errorf("docling %s: %w", command, parseErr)
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error"
		}
		entry.WithField("error", msg).Warn("Docling bridge reported failure")
		return resp, fmt.Errorf("docling %s failed: %s", command, msg)
	}

	entry.Debug("Docling bridge completed")
	return resp, nil
}

// parseBridgeOutput decodes the last non-empty stdout line.
func parseBridgeOutput(out []byte) (*bridgeResponse, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, errors.New("empty bridge output")
	}

	var resp bridgeResponse
	if err := json.Unmarshal([]byte(last), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bridge output: %w", err)
	}
	return &resp, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
