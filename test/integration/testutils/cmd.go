package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

const envPrefix = "APPLYFLOW_"

// Command runs the applyflow binary as a user would from a shell.
type Command struct {
	Binary string
	// Dir is the working directory, a `.env` file found there is loaded by the binary.
	Dir string
	// Env is added to the caller environment, after it is stripped of applyflow settings.
	Env []string
	// NoLog silences the logger so stderr only has command errors.
	NoLog bool
}

// Run executes the command with the arguments as they are, without shell splitting.
func (c Command) Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = c.Dir
	cmd.Stdout = &outData
	cmd.Stderr = &errData
	cmd.Env = c.environ()

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// environ drops the APPLYFLOW_* variables of the caller, flags read them as defaults
// and a developer shell (e.g. with APPLYFLOW_REDIS_ADDR) would change the tested setup.
// The integration test switches themselves are kept.
func (c Command) environ() []string {
	env := []string{}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, envPrefix) && !strings.HasPrefix(kv, envPrefix+"INTEGRATION") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, c.Env...)
	if c.NoLog {
		env = append(env, envPrefix+"NO_LOG=true")
	}
	return env
}
