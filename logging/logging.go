// Package logging provides module/method-scoped verbose logging shared by
// every gateway component, so a single VERBOSE setting can narrow debug
// output to exactly the subsystem being worked on (e.g. "relayexec" or
// "relayexec.Query") without drowning the rest of the log in noise.
package logging

import (
	"log"
	"os"
	"strings"
)

var (
	Verbose        bool
	verboseFilters map[string]bool
	verboseAll     bool
)

// SetVerbose configures verbose logging from a flag/env value.
//
//   - "" or "false": disable all verbose logging
//   - "true" or "all": enable all verbose logging
//   - "cachestore,relayexec": enable verbose for those modules only
//   - "relayexec.Query,publish": enable one method plus a whole module
func SetVerbose(verboseStr string) {
	verboseFilters = make(map[string]bool)
	verboseAll = false
	Verbose = false

	if verboseStr == "" || verboseStr == "false" {
		return
	}
	if verboseStr == "true" || verboseStr == "all" {
		Verbose = true
		verboseAll = true
		return
	}
	for _, filter := range strings.Split(verboseStr, ",") {
		filter = strings.TrimSpace(filter)
		if filter != "" {
			verboseFilters[filter] = true
			Verbose = true
		}
	}
}

// IsVerbose reports whether verbose logging is enabled for a module or a
// specific module.method pair.
func IsVerbose(module, method string) bool {
	if !Verbose {
		return false
	}
	if verboseAll {
		return true
	}
	if method != "" && verboseFilters[module+"."+method] {
		return true
	}
	return verboseFilters[module]
}

// DebugMethod logs a debug message for module.method, gated by IsVerbose.
func DebugMethod(module, method, format string, v ...interface{}) {
	if IsVerbose(module, method) {
		log.Printf("[DEBUG] "+module+"."+method+": "+format, v...)
	}
}

// Info logs an informational message (always shown).
func Info(format string, v ...interface{}) { log.Printf("[INFO] "+format, v...) }

// Warn logs a warning message (always shown).
func Warn(format string, v ...interface{}) { log.Printf("[WARN] "+format, v...) }

// Error logs an error message (always shown).
func Error(format string, v ...interface{}) { log.Printf("[ERROR] "+format, v...) }

// Fatal logs an error message and exits the process with status 1.
func Fatal(format string, v ...interface{}) {
	log.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
