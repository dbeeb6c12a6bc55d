package genericconf

import (
	"errors"
	"fmt"
	"io"
	"golang.org/x/exp/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ToSlogLevel parses a log level name (CRIT, ERROR, WARN, INFO, DEBUG,
// TRACE) or a legacy numeric geth verbosity into a slog level.
func ToSlogLevel(str string) (slog.Level, error) {
	switch strings.ToLower(str) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		legacyLevel, err := strconv.Atoi(str)
		if err != nil {
			return log.LevelInfo, errors.New("invalid log-level")
		}
		return log.FromLegacyLevel(legacyLevel), nil
	}
}

func HandlerFromLogType(logType string, output io.Writer) (slog.Handler, error) {
	if logType == "plaintext" {
		return log.NewTerminalHandler(output, false), nil
	} else if logType == "json" {
		return log.JSONHandler(output), nil
	}
	return nil, fmt.Errorf("invalid log type: %s", logType)
}
