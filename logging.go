package ferriself

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

func logColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// GetSlogHandler builds the console handler. Error attributes are tinted red.
func GetSlogHandler(debug bool, out io.Writer) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return tint.NewHandler(out, &tint.Options{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if _, ok := attr.Value.Any().(error); attr.Key == "err" || ok {
				return tint.Attr(9, attr)
			}
			return attr
		},
		TimeFormat: time.RFC3339,
		NoColor:    !logColors(out),
	})
}

// InitLogger installs the default logger: tinted console output fanned out
// with a rotated plaintext log under logDir. An empty logDir keeps logging
// console-only, which is what the tests and one-off commands want.
func InitLogger(debug bool, logDir string) error {
	handlers := []slog.Handler{GetSlogHandler(debug, os.Stdout)}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}
		fileOut := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "ferris-elf.log"),
			MaxSize:    50, // MB
			MaxBackups: 10,
		}
		handlers = append(handlers, GetSlogHandler(debug, fileOut))
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	return nil
}
