package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner replays scripted console output.
type fakeRunner struct {
	calls [][]string
	run   func(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, dir, name, args, onStderr)
}

func TestEngineFileOperations(t *testing.T) {
	e := &Engine{root: t.TempDir()}

	require.NoError(t, e.WriteFile("input.mp4", []byte("video")))
	data, err := e.ReadFile("input.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))

	require.NoError(t, e.DeleteFile("input.mp4"))
	_, err = os.Stat(filepath.Join(e.Root(), "input.mp4"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// deleting twice is fine
	require.NoError(t, e.DeleteFile("input.mp4"))
}

func TestEngineRejectsNamesOutsideScratchDir(t *testing.T) {
	e := &Engine{root: t.TempDir()}

	for _, name := range []string{"", "..", "../escape.mp3", "nested/out.mp3", `win\out.mp3`} {
		err := e.WriteFile(name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestEngineExecReportsMonotonicProgress(t *testing.T) {
	root := t.TempDir()
	var gotDir string
	runner := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error) {
			gotDir = dir
			for _, line := range []string{
				"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'input.mp4':",
				"  Duration: 00:00:05.00, start: 0.000000, bitrate: 512 kb/s",
				"size=       1kB time=00:00:01.00 bitrate=   8.2kbits/s speed=10x",
				"size=       1kB time=00:00:00.50 bitrate=   8.2kbits/s speed=10x",
				"size=       6kB time=00:00:02.50 bitrate=  20.0kbits/s speed=10x",
				"size=      12kB time=00:00:06.00 bitrate=  20.0kbits/s speed=10x",
			} {
				onStderr(line)
			}
			return commandResult{ExitCode: 0}, nil
		},
	}
	e := &Engine{ffmpegPath: "/usr/bin/ffmpeg", root: root, runner: runner}

	var ticks []float64
	log, err := e.Exec(context.Background(), []string{"-i", "input.mp4", "output.mp3"}, func(ratio float64) {
		ticks = append(ticks, ratio)
	})
	require.NoError(t, err)

	assert.Equal(t, root, gotDir)
	assert.Equal(t, "/usr/bin/ffmpeg", log.Command)
	assert.Equal(t, []string{"-i", "input.mp4", "output.mp3"}, log.Args)
	assert.Equal(t, []float64{0.2, 0.5, 1}, ticks)
}

func TestEngineExecFailureSkipsFinalTick(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error) {
			onStderr("input.mp4: Invalid data found when processing input")
			return commandResult{Stderr: "Invalid data", ExitCode: 1}, errors.New("exit status 1")
		},
	}
	e := &Engine{ffmpegPath: "ffmpeg", root: t.TempDir(), runner: runner}

	var ticks []float64
	log, err := e.Exec(context.Background(), []string{"-i", "input.mp4"}, func(ratio float64) {
		ticks = append(ticks, ratio)
	})
	require.Error(t, err)
	assert.Equal(t, 1, log.ExitCode)
	assert.Empty(t, ticks)
}

func TestLoaderSuccess(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "work")
	runner := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error) {
			if args[0] == "-version" {
				return commandResult{Stdout: "ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc\n"}, nil
			}
			return commandResult{Stdout: " A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)\n"}, nil
		},
	}
	l := &loader{
		opts:      Options{FFmpegPath: "ffmpeg", WorkDir: workDir},
		runner:    runner,
		lookPath:  func(name string) (string, error) { return "/opt/bin/" + name, nil },
		mkdirAll:  os.MkdirAll,
		mkdirTemp: os.MkdirTemp,
	}

	e, err := l.load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 6.1.1 Copyright (c) 2000-2023", e.Version())
	assert.Equal(t, workDir, filepath.Dir(e.Root()))
	assert.Len(t, runner.calls, 2)

	require.NoError(t, e.close())
	_, err = os.Stat(e.Root())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoaderFailures(t *testing.T) {
	noMP3 := &fakeRunner{
		run: func(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error) {
			return commandResult{Stdout: "aac\nopus\n"}, nil
		},
	}

	cases := map[string]*loader{
		"missing binary": {
			runner:   &fakeRunner{},
			lookPath: func(string) (string, error) { return "", errors.New("not found") },
		},
		"missing libmp3lame": {
			runner:   noMP3,
			lookPath: func(name string) (string, error) { return name, nil },
		},
		"cannot start": {
			runner: &fakeRunner{run: func(ctx context.Context, dir, name string, args []string, onStderr func(string)) (commandResult, error) {
				return commandResult{ExitCode: -1}, errors.New("exec format error")
			}},
			lookPath: func(name string) (string, error) { return name, nil },
		},
	}

	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			l.mkdirAll = os.MkdirAll
			l.mkdirTemp = os.MkdirTemp
			_, err := l.load(context.Background())
			var initErr *InitError
			require.ErrorAs(t, err, &initErr)
			assert.NotEmpty(t, initErr.Message)
		})
	}
}
