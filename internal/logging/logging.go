package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/indigo-web/tinyweb/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const (
	// FileLayout names log files after the day they were opened.
	FileLayout   = "2006_01_02"
	pollInterval = 10 * time.Millisecond
)

// New returns a logger, writing through a ring buffer drained by a separate goroutine.
// Loggers never block: messages not fitting into the buffer are dropped and counted.
// The returned closer flushes pending messages and must be called before exit.
func New(cfg config.Log) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logging: %w", err)
	}

	// stderr must survive closing the logger
	var (
		out  io.Writer = struct{ io.Writer }{os.Stderr}
		file *os.File
	)

	if len(cfg.Dir) > 0 {
		if file, err = openDaily(cfg.Dir, time.Now()); err != nil {
			return zerolog.Nop(), nil, err
		}

		out = file
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    file != nil,
			TimeFormat: time.DateTime,
		}
	}

	writer := diode.NewWriter(out, cfg.QueueSize, pollInterval, func(missed int) {
		_, _ = fmt.Fprintf(os.Stderr, "logging: dropped %d messages\n", missed)
	})

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	return logger, closer{writer: writer, file: file}, nil
}

func openDaily(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	name := filepath.Join(dir, now.Format(FileLayout)+".log")
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	return file, nil
}

type closer struct {
	writer diode.Writer
	file   *os.File
}

func (c closer) Close() error {
	err := c.writer.Close()

	if c.file != nil {
		if ferr := c.file.Close(); ferr != nil && !errors.Is(ferr, os.ErrClosed) {
			return ferr
		}
	}

	return err
}
