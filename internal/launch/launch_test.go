package launch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLauncher(env map[string]string) (*Launcher, *recordedExec) {
	rec := &recordedExec{}
	l := New("app.main:app", "0.0.0.0", 1, 65*time.Second, "info")
	l.execFn = rec.exec
	l.getenv = func(key string) string { return env[key] }
	return l, rec
}

type recordedExec struct {
	called bool
	path   string
	argv   []string
	err    error
}

func (r *recordedExec) exec(path string, argv []string) error {
	r.called = true
	r.path = path
	r.argv = argv
	return r.err
}

func TestLaunch_BuildsUvicornArgv(t *testing.T) {
	t.Parallel()

	l, rec := testLauncher(map[string]string{"PORT": "10000"})

	require.NoError(t, l.Launch("/usr/bin/python3"))
	require.True(t, rec.called)
	assert.Equal(t, "/usr/bin/python3", rec.path)
	assert.Equal(t, []string{
		"/usr/bin/python3", "-m", "uvicorn", "app.main:app",
		"--host", "0.0.0.0",
		"--port", "10000",
		"--workers", "1",
		"--timeout-keep-alive", "65",
		"--log-level", "info",
	}, rec.argv)
}

func TestLaunch_MissingPortIsFatalBeforeExec(t *testing.T) {
	t.Parallel()

	l, rec := testLauncher(map[string]string{})

	err := l.Launch("/usr/bin/python3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingPort))
	assert.False(t, rec.called, "no process replacement may be attempted without a port")
}

func TestLaunch_InvalidPortValues(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"abc", "0", "-1", "70000", "80.5"} {
		t.Run(bad, func(t *testing.T) {
			t.Parallel()

			l, rec := testLauncher(map[string]string{"PORT": bad})
			err := l.Launch("/usr/bin/python3")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingPort))
			assert.False(t, rec.called)
		})
	}
}

func TestLaunch_ExecFailureSurfaces(t *testing.T) {
	t.Parallel()

	l, rec := testLauncher(map[string]string{"PORT": "8000"})
	rec.err = errors.New("no such file or directory")

	err := l.Launch("/usr/bin/python3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec /usr/bin/python3")
}

func TestLaunch_WorkerCountConfigurable(t *testing.T) {
	t.Parallel()

	rec := &recordedExec{}
	l := New("app.main:app", "0.0.0.0", 4, 30*time.Second, "debug")
	l.execFn = rec.exec
	l.getenv = func(string) string { return "9000" }

	require.NoError(t, l.Launch("python3"))
	assert.Contains(t, rec.argv, "--workers")
	assert.Contains(t, rec.argv, "4")
	assert.Contains(t, rec.argv, "--log-level")
	assert.Contains(t, rec.argv, "debug")
}
