package config

import "fmt"

// Diagnostic is a non-fatal finding about a config, such as a key that fell back to its default.
type Diagnostic struct {
	Key     string
	Default interface{}
	Message string
}

// NewMissingDiagnostic reports that key was not set and def is used instead.
func NewMissingDiagnostic(key string, def interface{}) Diagnostic {
	return Diagnostic{
		Key:     key,
		Default: def,
		Message: fmt.Sprintf("%s not set, using default %v", key, def),
	}
}

// NewUnknownKeyDiagnostic reports a key nothing reads.
func NewUnknownKeyDiagnostic(key string) Diagnostic {
	return Diagnostic{Key: key, Message: fmt.Sprintf("unknown key %q is ignored", key)}
}

func (d Diagnostic) String() string {
	return d.Message
}
