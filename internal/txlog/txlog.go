// Package txlog writes one human-readable log file per ingestion request.
package txlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	fileTimeLayout = "20060102_150405.000000"
	lineTimeLayout = "2006-01-02 15:04:05.000"
	maxCollisions  = 100
)

// Log is a per-request transaction log. It is not shared between
// requests and must be closed exactly once.
type Log struct {
	file    *os.File
	path    string
	log     zerolog.Logger
	op      string
	table   string
	started time.Time
	closed  bool
}

// Open creates {dir}/{op}_{table}_{timestamp}.txt and writes the start
// banner. The directory is created when missing.
func Open(dir, op, table string, now time.Time) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s_%s", op, table, now.Format(fileTimeLayout))
	file, path, err := create(dir, base)
	if err != nil {
		return nil, err
	}

	l := &Log{
		file:    file,
		path:    path,
		op:      op,
		table:   table,
		started: now,
	}
	l.log = zerolog.New(consoleWriter(file)).With().Timestamp().Logger()
	l.log.Info().Msgf("===== START %s %s =====", strings.ToUpper(op), table)
	return l, nil
}

func create(dir, base string) (*os.File, string, error) {
	for i := 0; i < maxCollisions; i++ {
		name := base + ".txt"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.txt", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("failed to create transaction log: %w", err)
		}
	}
	return nil, "", fmt.Errorf("failed to create transaction log: too many files named %s", base)
}

func consoleWriter(f *os.File) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		TimeFormat: lineTimeLayout,
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return fmt.Sprintf("%-8s", levelName(s))
		},
	}
}

// levelName renders zerolog levels with the names operators grep for.
// Fatal is only ever emitted through WithLevel and stands for CRITICAL.
func levelName(level string) string {
	switch level {
	case zerolog.LevelFatalValue:
		return "CRITICAL"
	case zerolog.LevelWarnValue:
		return "WARNING"
	case "":
		return "INFO"
	default:
		return strings.ToUpper(level)
	}
}

// Path returns the log file location
func (l *Log) Path() string {
	return l.path
}

func (l *Log) Info(msg string) {
	l.log.Info().Msg(msg)
}

func (l *Log) Warn(msg string) {
	l.log.Warn().Msg(msg)
}

func (l *Log) Error(msg string) {
	l.log.Error().Msg(msg)
}

// Critical records a failure that may have left storage inconsistent
func (l *Log) Critical(msg string) {
	l.log.WithLevel(zerolog.FatalLevel).Msg(msg)
}

// Summary writes the closing counts of a batch
func (l *Log) Summary(total, succeeded, failed int, duration time.Duration) {
	l.log.Info().Msg("PROCESSING SUMMARY")
	l.log.Info().Msgf("Total items: %d", total)
	l.log.Info().Msgf("Success: %d", succeeded)
	l.log.Info().Msgf("Failed: %d", failed)
	l.log.Info().Msgf("Duration: %s", duration)
}

// Close writes the end banner and closes the file. Calling Close more than
// once is a no-op.
func (l *Log) Close() error {
	if l == nil || l.closed {
		return nil
	}
	l.closed = true
	l.log.Info().Msgf("===== END %s %s =====", strings.ToUpper(l.op), l.table)
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("failed to sync transaction log: %w", err)
	}
	return l.file.Close()
}
