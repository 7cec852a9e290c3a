package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const logTimeFormat = "15:04:05"

// InitLogger builds the arbor logger from the logging section. Console
// output is always on unless only "file" is requested.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	wantFile, wantConsole := false, false
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			wantFile = true
		case "stdout", "console":
			wantConsole = true
		}
	}

	if wantFile {
		dir := logDir(config.Logging.Dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: log directory %s unavailable: %v\n", dir, err)
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(dir, "sicknote.log"),
				TimeFormat: logTimeFormat,
				MaxSize:    50 * 1024 * 1024,
				MaxBackups: 5,
				OutputType: models.OutputFormatLogfmt,
			})
		}
	}

	if wantConsole || !wantFile {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: logTimeFormat,
		})
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

func logDir(configured string) string {
	if configured == "" {
		configured = "logs"
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), configured)
	}
	return configured
}
