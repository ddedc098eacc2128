// Package logging wires zerolog, sourcing its configuration from the
// glog-style environment variables GLOG_v, GLOG_logtostderr, GLOG_log_dir,
// GLOG_logfile_mode, GLOG_stderrthreshold, and MS_SUBMODULE_LOG_v's
// comma-separated "module:level" pairs.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Level is one of the four levels MS_SUBMODULE_LOG_v accepts: 0 debug,
// 1 info, 2 warning, 3 error.
type Level int

const (
	LevelDebug Level = 0
	LevelInfo  Level = 1
	LevelWarn  Level = 2
	LevelError Level = 3
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ModuleLevels holds the per-module overrides decoded from
// MS_SUBMODULE_LOG_v, e.g. "{SERVING:1}" -> {"SERVING": LevelInfo}.
type ModuleLevels map[string]Level

var (
	mu      sync.RWMutex
	modules ModuleLevels
)

// ParseModuleLevels decodes MS_SUBMODULE_LOG_v's "{module:level,...}" form.
// Malformed entries are skipped rather than treated as fatal.
func ParseModuleLevels(raw string) ModuleLevels {
	out := ModuleLevels{}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) != 2 {
			continue
		}
		lvl, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = Level(lvl)
	}
	return out
}

// ForModule returns the configured level for a module name, defaulting to
// LevelInfo when unset.
func ForModule(name string) Level {
	mu.RLock()
	defer mu.RUnlock()
	if lvl, ok := modules[name]; ok {
		return lvl
	}
	return LevelInfo
}

// Configure sets up the global zerolog logger from the GLOG_*/
// MS_SUBMODULE_LOG_v environment variables. Call once at process startup.
func Configure() {
	mu.Lock()
	modules = ParseModuleLevels(os.Getenv("MS_SUBMODULE_LOG_v"))
	mu.Unlock()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if v := os.Getenv("GLOG_v"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			level = Level(n).zerolog()
		}
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	toStderr := os.Getenv("GLOG_logtostderr")
	logDir := os.Getenv("GLOG_log_dir")
	if (toStderr == "0" || toStderr == "false") && logDir != "" {
		mode := os.FileMode(0644)
		if m := os.Getenv("GLOG_logfile_mode"); m != "" {
			if parsed, err := strconv.ParseUint(m, 8, 32); err == nil {
				mode = os.FileMode(parsed)
			}
		}
		if f, err := openLogFile(logDir, mode); err == nil {
			out = f
		}
	}

	if threshold := os.Getenv("GLOG_stderrthreshold"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil && Level(n).zerolog() > level {
			level = Level(n).zerolog()
			zerolog.SetGlobalLevel(level)
		}
	}

	log := zerolog.New(out).With().Timestamp().Logger().Level(level)
	zerologGlobal = &log
	zlog.Logger = log
}

var zerologGlobal *zerolog.Logger

// Logger returns the process-wide configured logger. All other master
// state lives in explicit context objects, not package-level globals.
func Logger() *zerolog.Logger {
	if zerologGlobal == nil {
		Configure()
	}
	return zerologGlobal
}

func openLogFile(dir string, mode os.FileMode) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "predictgrid.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, mode)
}
