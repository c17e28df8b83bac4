package execx

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunner_CapturesOutput(t *testing.T) {
	t.Parallel()

	out, err := LocalRunner{}.Run(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestLocalRunner_NonZeroExit(t *testing.T) {
	t.Parallel()

	_, err := LocalRunner{}.Run(context.Background(), "false")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestLocalRunner_SpawnFailure(t *testing.T) {
	t.Parallel()

	_, err := LocalRunner{}.Run(context.Background(), "definitely-not-a-real-binary")
	require.Error(t, err)
	assert.Equal(t, -1, ExitCode(err))
}

func TestExitCode_NonExecError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, ExitCode(errors.New("plain error")))
	assert.Equal(t, -1, ExitCode(exec.ErrNotFound))
}
