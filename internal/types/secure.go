package types

// redacted replaces secret values wherever they would otherwise be printed
// or serialized.
const redacted = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive config value: the cron trigger secret, the
// database URL, the Stripe keys, the chat provider API key. It satisfies
// fmt.Stringer and json.Marshaler with a redacted placeholder, so a config
// dump, a structured log line, or an error message built with %v cannot leak
// the plaintext.
//
// Unmask returns the plaintext for the few places that genuinely need it:
// the Authorization header, the pool connection string, the webhook
// signature check.
type SecretString string

// String returns the redacted placeholder. Invoked by the fmt verbs through
// the Stringer interface.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON encodes the redacted placeholder, never the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext. Call sites should be few and obvious.
func (s SecretString) Unmask() string {
	return string(s)
}
