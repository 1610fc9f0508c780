package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurite-lab/tractus/internal/bundles"
	"github.com/neurite-lab/tractus/internal/config"
	"github.com/neurite-lab/tractus/internal/nifti"
)

func TestWatch_ProcessesDroppedVolume(t *testing.T) {
	prev := settleDelay
	settleDelay = 50 * time.Millisecond
	t.Cleanup(func() { settleDelay = prev })

	dropDir := t.TempDir()
	weightsDir := t.TempDir()
	stageWeights(t, weightsDir, config.OutputTractSegmentation)

	factory := func() (*Runner, error) {
		return newTestRunner(t, weightsDir, nil, bundles.Count), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dropDir, &Options{
			OutputType: config.OutputTractSegmentation,
			CSDType:    config.CSDStandard,
			SingleFile: true,
		}, factory)
	}()

	// Give the watcher a moment to register before dropping the volume.
	time.Sleep(100 * time.Millisecond)
	input := writePeaks(t, dropDir)

	expected := filepath.Join(dropDir, "peaks_tractus", "bundle_segmentations.nii.gz")
	require.Eventually(t, func() bool {
		_, err := os.Stat(expected)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "dropped volume %s was never segmented", input)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWatch_RunsOncePerDroppedVolume(t *testing.T) {
	prev := settleDelay
	settleDelay = 100 * time.Millisecond
	t.Cleanup(func() { settleDelay = prev })

	dropDir := t.TempDir()
	weightsDir := t.TempDir()
	stageWeights(t, weightsDir, config.OutputTractSegmentation)

	var runs atomic.Int32
	factory := func() (*Runner, error) {
		runs.Add(1)
		return newTestRunner(t, weightsDir, nil, bundles.Count), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dropDir, &Options{
			OutputType: config.OutputTractSegmentation,
			CSDType:    config.CSDStandard,
			SingleFile: true,
		}, factory)
	}()

	time.Sleep(100 * time.Millisecond)

	// Write the volume in small chunks so the drop raises a Create followed
	// by several Write events.
	v := nifti.New([4]int{4, 4, 4, 9}, testAffine())
	var buf bytes.Buffer
	require.NoError(t, nifti.Encode(v, &buf, nifti.SaveOptions{}))

	input := filepath.Join(dropDir, "peaks.nii")
	f, err := os.OpenFile(input, os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	for raw := buf.Bytes(); len(raw) > 0; {
		n := 64
		if n > len(raw) {
			n = len(raw)
		}
		_, err := f.Write(raw[:n])
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		raw = raw[n:]
	}
	require.NoError(t, f.Close())

	expected := filepath.Join(dropDir, "peaks_tractus", "bundle_segmentations.nii.gz")
	require.Eventually(t, func() bool {
		_, err := os.Stat(expected)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	// Let any stray rescheduled timers fire before counting.
	time.Sleep(3 * settleDelay)
	assert.Equal(t, int32(1), runs.Load(), "one volume processed %d times", runs.Load())

	cancel()
	<-done
}

func TestWatch_IgnoresNonVolumes(t *testing.T) {
	assert.True(t, isVolume("/drop/subject01.nii.gz"))
	assert.True(t, isVolume("/drop/subject01.nii"))
	assert.False(t, isVolume("/drop/subject01.bvals"))
	assert.False(t, isVolume("/drop/notes.txt"))
}
