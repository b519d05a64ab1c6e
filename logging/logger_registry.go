package logging

import (
	"regexp"
	"sort"
	"sync"
)

var globalLoggerRegistry = newRegistry()

// Registry is a collection of named loggers whose levels can be changed by pattern.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string][]Logger
	logConfig []LoggerPatternConfig
}

func newRegistry() *Registry {
	return &Registry{
		loggers: make(map[string][]Logger),
	}
}

func (lr *Registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	named := lr.loggers[name]
	if len(named) == 0 {
		return nil, false
	}
	return named[len(named)-1], true
}

// applyConfigLocked sets the level of `logger` from the last matching pattern, if any. Later
// patterns win over earlier ones.
func (lr *Registry) applyConfigLocked(name string, logger Logger) {
	for _, lpc := range lr.logConfig {
		if !validatePattern(lpc.Pattern) {
			continue
		}
		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil || !r.MatchString(name) {
			continue
		}
		level, err := LevelFromString(lpc.Level)
		if err != nil {
			continue
		}
		logger.SetLevel(level)
	}
}

// UpdateConfig stores the pattern config and re-levels every registered logger. Loggers matched
// by no pattern go back to INFO.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	for _, lpc := range logConfig {
		if !validatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
		}
		if _, err := LevelFromString(lpc.Level); err != nil {
			return err
		}
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = logConfig
	for name, named := range lr.loggers {
		for _, logger := range named {
			logger.SetLevel(INFO)
			lr.applyConfigLocked(name, logger)
		}
	}
	return nil
}

func (lr *Registry) getRegisteredLoggerNames() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	registeredNames := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		registeredNames = append(registeredNames, name)
	}
	sort.Strings(registeredNames)
	return registeredNames
}

// register adds `logger` under `name` and levels it from the existing patterns. Several loggers
// may share a name, e.g. the same component's sublogger in two tests; all of them follow config
// updates and the most recent one is returned by name.
func (lr *Registry) register(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = append(lr.loggers[name], logger)
	lr.applyConfigLocked(name, logger)
	return logger
}

// UpdateLoggerRegistryConfig applies `log` config patterns to all registered loggers.
func UpdateLoggerRegistryConfig(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	return globalLoggerRegistry.UpdateConfig(logConfig, errorLogger)
}

// LoggerNamed returns the registered logger with the given name.
func LoggerNamed(name string) (Logger, bool) {
	return globalLoggerRegistry.loggerNamed(name)
}

// GetRegisteredLoggerNames returns the sorted names of all registered loggers.
func GetRegisteredLoggerNames() []string {
	return globalLoggerRegistry.getRegisteredLoggerNames()
}
