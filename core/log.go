package core

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	once      sync.Once
	singleton *log.Logger

	onceKeysMu sync.Mutex
	onceKeys   = map[string]struct{}{}
)

// Logger returns the process logger, created on first use.
func Logger() *log.Logger {
	once.Do(func() {
		singleton = log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "gles3",
		})
		singleton.SetLevel(log.InfoLevel)
	})
	return singleton
}

// SetLogLevel accepts debug, info, warn or error. Unknown names are ignored.
func SetLogLevel(name string) {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		LogWarn("unknown log level %q", name)
		return
	}
	Logger().SetLevel(lvl)
}

func LogDebug(msg string, args ...interface{}) {
	Logger().Helper()
	Logger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	Logger().Helper()
	Logger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	Logger().Helper()
	Logger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	Logger().Helper()
	Logger().Errorf(msg, args...)
}

// LogOnce logs an error the first time key is seen and drops repeats. It is
// used for invalid-handle reports that would otherwise fire every frame.
func LogOnce(key string, msg string, args ...interface{}) {
	onceKeysMu.Lock()
	_, seen := onceKeys[key]
	onceKeys[key] = struct{}{}
	onceKeysMu.Unlock()
	if seen {
		return
	}
	Logger().Helper()
	Logger().Errorf(msg, args...)
}

// NumberedSource prefixes every line of src with its 1-based line number so
// driver error messages can be matched against the generated code.
func NumberedSource(src string) string {
	lines := strings.Split(src, "\n")
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%4d | %s\n", i+1, l)
	}
	return b.String()
}
