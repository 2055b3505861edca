package insight

import "fmt"

// ConfigErrorKind classifies a ConfigurationError.
type ConfigErrorKind string

const (
	MissingCredential ConfigErrorKind = "missing_credential"
	UnknownProvider   ConfigErrorKind = "unknown_provider"
)

// ConfigurationError is returned before any network call when the
// interpreter cannot be set up.
type ConfigurationError struct {
	Kind     ConfigErrorKind
	Provider string
}

func (e *ConfigurationError) Error() string {
	switch e.Kind {
	case MissingCredential:
		return fmt.Sprintf("missing API key for provider %q (set api_key, INSIGHTLOOM_API_KEY or GROQ_API_KEY)", e.Provider)
	case UnknownProvider:
		return fmt.Sprintf("unknown provider %q", e.Provider)
	}
	return fmt.Sprintf("configuration error (%s) for provider %q", e.Kind, e.Provider)
}

// InterpreterError wraps any failure of the model call. The underlying ai
// error stays reachable through errors.As.
type InterpreterError struct {
	Provider string
	Model    string
	Err      error
}

func (e *InterpreterError) Error() string {
	return fmt.Sprintf("interpret with %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *InterpreterError) Unwrap() error { return e.Err }
