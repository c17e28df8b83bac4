package migrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out  string
	err  error
	name string
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.name = name
	f.args = args
	return f.out, f.err
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		out     string
		err     error
		want    Outcome
		wantErr bool
	}{
		{
			name: "applied changes",
			out: "INFO  [alembic.runtime.migration] Context impl PostgresqlImpl.\n" +
				"INFO  [alembic.runtime.migration] Running upgrade  -> 001, initial migration\n",
			want: Applied,
		},
		{
			name: "nothing pending",
			out:  "INFO  [alembic.runtime.migration] Context impl PostgresqlImpl.\n",
			want: NoneToApply,
		},
		{
			name: "empty output counts as nothing pending",
			out:  "",
			want: NoneToApply,
		},
		{
			name:    "non-zero exit",
			out:     "FAILED: Can't locate revision identified by 'deadbeef'",
			err:     errors.New("exit status 1"),
			want:    Failed,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := New(&fakeRunner{out: tc.out, err: tc.err}, "alembic", []string{"upgrade", "head"}, time.Minute)
			got, err := r.Apply(context.Background())

			assert.Equal(t, tc.want, got)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "alembic upgrade head")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestApply_InvokesConfiguredTool(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{}
	r := New(fake, "alembic", []string{"upgrade", "head"}, time.Minute)

	_, err := r.Apply(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "alembic", fake.name)
	assert.Equal(t, []string{"upgrade", "head"}, fake.args)
}

func TestApply_FailureCarriesToolOutput(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{
		out: "FAILED: Can't connect to database\n",
		err: errors.New("exit status 255"),
	}
	r := New(fake, "alembic", []string{"upgrade", "head"}, time.Minute)

	got, err := r.Apply(context.Background())
	assert.Equal(t, Failed, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't connect to database")
}
