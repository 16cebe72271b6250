package applyflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/applyflow/applyflow/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "applyflow"
	}

	// go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("APPLYFLOW_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("applyflow binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "APPLYFLOW_INTEGRATION"
		envBinary     = "APPLYFLOW_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// DataDir is an isolated applyflow data directory with company configs and profiles.
type DataDir struct {
	Path string
}

// NewDataDir creates a data directory with the given company configs and profiles,
// both by file name without extension.
func NewDataDir(t *testing.T, companies, profiles map[string]string) DataDir {
	t.Helper()

	dir := t.TempDir()
	write := func(sub string, files map[string]string) {
		p := filepath.Join(dir, sub)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("could not create %s: %s", p, err)
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(p, name+".yaml"), []byte(content), 0o644); err != nil {
				t.Fatalf("could not write %s: %s", name, err)
			}
		}
	}
	write("companies", companies)
	write("profiles", profiles)

	return DataDir{Path: dir}
}

// Run executes an applyflow command on the data directory.
func (d DataDir) Run(ctx context.Context, config Config, args ...string) (stdout, stderr []byte, err error) {
	cmd := testutils.Command{Binary: config.Binary, Dir: d.Path, NoLog: true}
	args = append([]string{"--data-dir", d.Path, "--initial-backoff", "10ms", "--max-backoff", "50ms"}, args...)
	return cmd.Run(ctx, args...)
}
