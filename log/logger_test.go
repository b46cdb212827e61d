package log

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Levels{Info: true, Warn: true}, splitLevel("INFO|WARN"))
	assert.Equal(t, Levels{Debug: true, Error: true}, splitLevel("debug| ERROR"))
	assert.Equal(t, Levels{}, splitLevel("nonsense"))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestMultiWriter(t *testing.T) {
	t.Parallel()
	var a, b bytes.Buffer
	mw, err := MultiWriter(&a, &b)
	require.NoError(t, err)
	assert.ErrorIs(t, mw.Add(&a), errDuplicateWriter)

	n, err := mw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())

	require.NoError(t, mw.Add(failingWriter{}))
	var c bytes.Buffer
	require.NoError(t, mw.Add(&c))
	_, err = mw.Write([]byte("!"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, "!", c.String(), "writers after a failure still receive the line")

	_, err = MultiWriter(&a, &a)
	assert.ErrorIs(t, err, errDuplicateWriter)
}

func TestNewLogEvent(t *testing.T) {
	t.Parallel()
	l := Logger{
		ShowLogSystemName: true,
		TimestampFormat:   timestampFormat,
		Spacer:            spacer,
		InfoHeader:        "[INFO]",
	}
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	got := l.newLogEvent("bar skipped", "[INFO]", "BACKTESTER", ts)
	assert.Equal(t, "[INFO] | BACKTESTER |  01/03/2024 12:30:00  | bar skipped\n", got)

	l.ShowLogSystemName = false
	got = l.newLogEvent("done\n", "[INFO]", "BACKTESTER", ts)
	assert.Equal(t, "[INFO] |  01/03/2024 12:30:00  | done\n", got)
}

func TestGetWriters(t *testing.T) {
	t.Parallel()
	_, err := getWriters(nil)
	assert.ErrorIs(t, err, errSubloggerConfigIsNil)
	_, err = getWriters(&SubLoggerConfig{Output: "carrier-pigeon"})
	assert.ErrorIs(t, err, errUnhandledOutputWriter)
	w, err := getWriters(&SubLoggerConfig{Output: "stdout|stderr"})
	require.NoError(t, err)
	assert.NotNil(t, w)
}

// The tests below mutate package state and are not run in parallel.

func TestSubLoggerLevelsAndOutput(t *testing.T) {
	sl := registerNewSubLogger("testlevels")
	var buf bytes.Buffer
	sl.SetOutput(&buf)
	sl.SetLevels(Levels{Warn: true})

	Infof(sl, "hidden %d", 1)
	Warnf(sl, "shown %d", 2)
	Errorln(sl, "hidden", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Equal(t, "TESTLEVELS", sl.Name())
	assert.Equal(t, Levels{Warn: true}, sl.GetLevels())

	var nilLogger *SubLogger
	assert.NotPanics(t, func() { Info(nilLogger, "nothing") })
}

func TestSetupGlobalLogger(t *testing.T) {
	assert.ErrorIs(t, SetupGlobalLogger(nil), errSubloggerConfigIsNil)

	c := GenDefaultSettings()
	c.FileName = filepath.Join(t.TempDir(), "logs", "harness.log")
	c.Output = "file"
	c.SubLoggers = []SubLoggerConfig{{Name: "risk", Level: "ERROR", Output: "file"}}
	require.NoError(t, SetupGlobalLogger(&c))

	Infof(BackTester, "run started")
	Infof(Risk, "filtered")
	Errorf(Risk, "rule failed")
	require.NoError(t, CloseLogger())

	data, err := os.ReadFile(c.FileName)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "BACKTESTER")
	assert.Contains(t, out, "run started")
	assert.NotContains(t, out, "filtered")
	assert.Contains(t, out, "rule failed")
	assert.Equal(t, 2, strings.Count(out, "\n"))

	bad := GenDefaultSettings()
	bad.SubLoggers = []SubLoggerConfig{{Name: "nope", Level: "INFO", Output: "console"}}
	assert.ErrorIs(t, SetupGlobalLogger(&bad), errSubLoggerNotFound)

	def := GenDefaultSettings()
	require.NoError(t, SetupGlobalLogger(&def))
}
