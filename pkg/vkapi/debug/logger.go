package debug

import (
	"fmt"
	"io"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

var colors = map[string]string{
	"text":  "\x1b[38;5;6m%s\x1b[0m",
	"trace": "\x1b[38;5;8mTRACE\x1b[0m",
	"debug": "\x1b[32mDEBUG\x1b[0m",
	"gray":  "\x1b[38;5;8m%s\x1b[0m",
	"info":  "\x1b[38;5;111mINFO\x1b[0m",
	"warn":  "\x1b[38;5;214mWARN\x1b[0m",
	"error": "\x1b[38;5;204mERROR\x1b[0m",
	"fatal": "\x1b[38;5;52mFATAL\x1b[0m",
}

func newConsoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
		FormatLevel: func(i any) string {
			name := fmt.Sprintf("%s", i)
			if noColor {
				return name
			}
			return colors[name]
		},
		FormatMessage: func(i any) string {
			if noColor {
				return fmt.Sprintf("%s", i)
			}
			return fmt.Sprintf(colors["text"], i)
		},
		FormatFieldName: func(i any) string {
			if noColor {
				return fmt.Sprintf("%s=", i)
			}
			return fmt.Sprintf(colors["gray"], fmt.Sprintf("%s=", i))
		},
		FormatFieldValue: func(i any) string {
			return fmt.Sprintf("%s", i)
		},
	}
}

// NewLogger returns a console logger writing to colorable stdout.
func NewLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(newConsoleWriter(colorable.NewColorableStdout(), false)).
		Level(level).
		With().Timestamp().Logger()
}

// NewPlainLogger is like NewLogger without ANSI colors, for log files and pipes.
func NewPlainLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(newConsoleWriter(colorable.NewNonColorable(out), true)).
		Level(level).
		With().Timestamp().Logger()
}
