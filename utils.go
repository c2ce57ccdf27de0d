package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initLogger installs the global zap logger at the given level
func initLogger(logLevel string) {
	cfg := zap.NewDevelopmentConfig()

	switch logLevel {
	case "debug":
		cfg.Level.SetLevel(zap.DebugLevel)
	case "info":
		cfg.Level.SetLevel(zap.InfoLevel)
	case "warn":
		cfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		cfg.Level.SetLevel(zap.ErrorLevel)
	default:
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	lgr, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("build logger: %w", err))
	}

	zap.ReplaceGlobals(lgr)
}

// AppLogger writes the optional diagnostic files: every wire frame and ledger dumps
type AppLogger struct {
	outputDir string
	logWire   bool
	logDB     bool
	wireLog   *os.File
	dbLog     *os.File
	mu        sync.Mutex
	wireCount int
	ledger    *Ledger
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir string
	LogWire   bool
	LogDB     bool
}

// NewAppLogger creates a new application logger
func NewAppLogger(config LogConfig, ledger *Ledger) (*AppLogger, error) {
	al := &AppLogger{
		outputDir: config.OutputDir,
		logWire:   config.LogWire,
		logDB:     config.LogDB,
		ledger:    ledger,
	}

	if al.outputDir == "" {
		return al, nil
	}
	if err := os.MkdirAll(al.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	var err error
	if al.logWire {
		al.wireLog, err = os.OpenFile(filepath.Join(al.outputDir, "wire.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open wire log: %w", err)
		}
	}
	if al.logDB {
		al.dbLog, err = os.OpenFile(filepath.Join(al.outputDir, "database.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			al.Close()
			return nil, fmt.Errorf("failed to open database log: %w", err)
		}
	}

	return al, nil
}

// Close closes all open log files
func (al *AppLogger) Close() {
	if al.wireLog != nil {
		al.wireLog.Close()
	}
	if al.dbLog != nil {
		al.dbLog.Close()
	}
}

// LogWire logs one protocol frame
func (al *AppLogger) LogWire(direction, sessionID, line string) {
	if !al.logWire || al.wireLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.wireCount++
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Fprintf(al.wireLog, "[%s] #%d %s [%s]: %s\n",
		timestamp, al.wireCount, direction, sessionID, line)
}

// LogDB dumps the current ledger state
func (al *AppLogger) LogDB(context string) {
	if !al.logDB || al.dbLog == nil || al.ledger == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(al.dbLog, "\n========== DATABASE DUMP [%s] ==========\nContext: %s\n\n%s",
		timestamp, context, al.ledger.dump())
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWireMessage logs a protocol frame using the global logger
func LogWireMessage(direction, sessionID, line string) {
	if appLogger != nil {
		appLogger.LogWire(direction, sessionID, line)
	}
}

// LogDBState logs the ledger state using the global logger
func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug message tagged with the calling function
func DebugLog(fn string, format string, args ...any) {
	zap.L().Debug(fmt.Sprintf(format, args...), zap.String("func", fn))
}

// logError logs an error with context
func logError(context string, err error) {
	zap.L().Error(context, zap.Error(err))
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}
