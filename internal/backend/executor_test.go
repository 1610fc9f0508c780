package backend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and returns canned output.
type fakeRunner struct {
	name   string
	args   []string
	stdout []byte
	stderr []byte
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, _ io.Reader) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	return f.stdout, f.stderr, f.err
}

func TestExecutor_Execute(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("ok")}
	e := NewExecutorWithRunner("dwi2fod", time.Second, runner)

	out, err := e.Execute(context.Background(), []string{"csd", "in.nii.gz", "out.nii.gz"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)
	assert.Equal(t, "dwi2fod", runner.name)
	assert.Equal(t, []string{"csd", "in.nii.gz", "out.nii.gz"}, runner.args)
}

func TestExecutor_ExecuteWrapsStderr(t *testing.T) {
	runner := &fakeRunner{
		stderr: []byte("gradient table has wrong number of rows\n"),
		err:    errors.New("exit status 1"),
	}
	e := NewExecutorWithRunner("dwi2response", time.Second, runner)

	_, err := e.Execute(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dwi2response")
	assert.Contains(t, err.Error(), "gradient table has wrong number of rows")
}

func TestExecutor_ExecuteNoStderr(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 2")}
	e := NewExecutorWithRunner("sh2peaks", time.Second, runner)

	_, err := e.Execute(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 2")
}

func TestNewExecutor_MissingBinary(t *testing.T) {
	_, err := NewExecutor("/nonexistent/path/to/binary", time.Second)
	assert.Error(t, err)
}
