// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// multiWriter fans a single write out to stdout and the active log
// rotator, matching the teacher's logWriter/errLogWriter pair but backed
// by a single btclog.Backend instead of the unretrieved internal "logs"
// fork.
type multiWriter struct{}

func (multiWriter) Write(p []byte) (int, error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

var (
	// LogRotator is the logging output. It should be closed on
	// application shutdown.
	LogRotator *rotator.Rotator

	// backendLog is the logging backend used to create all subsystem
	// loggers. Writes are no-ops until InitLogRotator runs.
	backendLog = btclog.NewBackend(multiWriter{})

	asetLog = backendLog.Logger("ASET")
	dbscLog = backendLog.Logger("DBSC")
	frscLog = backendLog.Logger("FRSC")
	peerLog = backendLog.Logger("PEER")
	tagsLog = backendLog.Logger("TAGS")
	thrtLog = backendLog.Logger("THRT")
	rateLog = backendLog.Logger("RATE")
	vrfyLog = backendLog.Logger("VRFY")
	abtsLog = backendLog.Logger("ABTS")

	initiated = false
)

// SubsystemTags is an enum of all subsystem tags used by this module.
var SubsystemTags = struct {
	ASET, // AccountSets
	DBSC, // DatabaseScan
	FRSC, // FrontierScan
	PEER, // PeerScoring
	TAGS, // OrderedTags
	THRT, // Throttle
	RATE, // RateLimiter
	VRFY, // Verifier
	ABTS string // BootstrapService orchestrator
}{
	ASET: "ASET",
	DBSC: "DBSC",
	FRSC: "FRSC",
	PEER: "PEER",
	TAGS: "TAGS",
	THRT: "THRT",
	RATE: "RATE",
	VRFY: "VRFY",
	ABTS: "ABTS",
}

var subsystemLoggers = map[string]btclog.Logger{
	SubsystemTags.ASET: asetLog,
	SubsystemTags.DBSC: dbscLog,
	SubsystemTags.FRSC: frscLog,
	SubsystemTags.PEER: peerLog,
	SubsystemTags.TAGS: tagsLog,
	SubsystemTags.THRT: thrtLog,
	SubsystemTags.RATE: rateLog,
	SubsystemTags.VRFY: vrfyLog,
	SubsystemTags.ABTS: abtsLog,
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before
// the package-global subsystem loggers are used, or logging is a no-op.
func InitLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		os.Exit(1)
	}
	LogRotator = r
	initiated = true
}

// Get returns the logger for the given subsystem tag.
func Get(tag string) (logger btclog.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// SetLogLevel sets the logging level for the given subsystem. Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystem
// tags.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetDebugLevels attempts to parse the specified debug level
// string and set the levels accordingly.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}

		SetLogLevel(subsysID, logLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
