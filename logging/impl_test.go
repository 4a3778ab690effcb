package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func newBufferLogger(level Level) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := &impl{"impl", NewAtomicLevelAt(level), true, []Appender{NewWriterAppender(buf)}}
	return logger, buf
}

func TestConsoleFormatting(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)

	logger.Infof("captured %d frames", 3)
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "impl")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "captured 3 frames")

	logger.Warnw("calibration rejected", "deviation", 114.0, "reference", "credit_card")
	line, err = buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts = strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 6)
	test.That(t, parts[1], test.ShouldEqual, "WARN")

	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields["deviation"], test.ShouldEqual, 114.0)
	test.That(t, fields["reference"], test.ShouldEqual, "credit_card")
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Error("kept")
	test.That(t, buf.String(), test.ShouldContainSubstring, "kept")

	buf.Reset()
	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debugf("now %s", "visible")
	test.That(t, buf.String(), test.ShouldContainSubstring, "now visible")
}

func TestUnpairedKey(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)
	logger.Infow("odd", "lonely")
	test.That(t, buf.String(), test.ShouldContainSubstring, "unpaired log key")
}

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("capture")
	sub.Info("started")
	subsub := sub.Sublogger("meter")
	subsub.Debug("evaluated")

	test.That(t, observed.FilterLoggerName("capture").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterLoggerName("capture.meter").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("evaluated").Len(), test.ShouldEqual, 1)
}

func TestLevelFromString(t *testing.T) {
	for str, want := range map[string]Level{"debug": DEBUG, "INFO": INFO, "Warn": WARN, "warning": WARN, "error": ERROR} {
		level, err := LevelFromString(str)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, want)
	}
	_, err := LevelFromString("verbose")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
	out, err := json.Marshal(WARN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"warn"`)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")
	appender := NewFileAppender(path, 1, 1)
	logger := NewBlankLogger("file")
	logger.AddAppender(appender)

	logger.Info("written to disk")
	test.That(t, logger.Sync(), test.ShouldBeNil)
	test.That(t, appender.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "written to disk")
}
