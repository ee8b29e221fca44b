package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Bundle keys understood by the plugin.
const (
	KeyExecutable               = "com.termux.tasker.extra.EXECUTABLE"
	KeyArguments                = "com.termux.execute.arguments"
	KeyWorkingDirectory         = "com.termux.tasker.extra.WORKDIR"
	KeyStdin                    = "com.termux.tasker.extra.STDIN"
	KeySessionAction            = "com.termux.tasker.extra.SESSION_ACTION"
	KeyBackgroundCustomLogLevel = "com.termux.tasker.extra.BACKGROUND_CUSTOM_LOG_LEVEL"
	KeyTerminal                 = "com.termux.tasker.extra.TERMINAL"
	KeyWaitForResult            = "com.termux.tasker.extra.WAIT_FOR_RESULT"
	KeyVersionCode              = "com.termux.tasker.extra.VERSION_CODE"
	KeyVariableReplaceKeys      = "net.dinglisch.android.tasker.extras.VARIABLE_REPLACE_KEYS"
)

// Bundle key count limits.
const (
	MinBundleKeys = 3
	MaxBundleKeys = 10
)

// ProtocolVersion is stamped into generated bundles.
const ProtocolVersion = 7

// Bundle is the key/value map exchanged with the automation host.
// Values are strings, booleans or integers.
type Bundle map[string]any

// Has reports whether the key is present.
func (b Bundle) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// GetString returns the string value for key, or "" when absent or not a string.
func (b Bundle) GetString(key string) string {
	if s, ok := b[key].(string); ok {
		return s
	}
	return ""
}

// GetBool returns the boolean value for key, or false when absent or not a boolean.
func (b Bundle) GetBool(key string) bool {
	if v, ok := b[key].(bool); ok {
		return v
	}
	return false
}

// GetInt returns the integer value for key, or def when absent or not an integer.
func (b Bundle) GetInt(key string, def int) int {
	switch v := b[key].(type) {
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return def
		}
		return v
	case int32:
		return int(v)
	default:
		return def
	}
}

// Keys returns the bundle keys in sorted order.
func (b Bundle) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the bundle.
func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// DecodeBundle parses a JSON or YAML document into a Bundle.
// Integers decode as int, so a quoted number stays a string.
func DecodeBundle(data []byte) (Bundle, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNullBundle
	}
	if trimmed[0] == '{' {
		return decodeJSONBundle(trimmed)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if raw == nil {
		return nil, ErrNullBundle
	}
	return Bundle(raw), nil
}

func decodeJSONBundle(data []byte) (Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw Bundle
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return NormalizeNumbers(raw), nil
}

// NormalizeNumbers returns a copy of b with json.Number values replaced by
// int, or float64 when the number is not an integer. A nil bundle stays nil.
func NormalizeNumbers(b Bundle) Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		n, ok := v.(json.Number)
		if !ok {
			out[k] = v
			continue
		}
		if i, err := strconv.Atoi(n.String()); err == nil {
			out[k] = i
		} else {
			out[k], _ = n.Float64()
		}
	}
	return out
}

// ValidateBundle checks the bundle against the plugin schema.
//
// A bundle without the wait-for-result key is upgraded in place:
// the key is derived from the terminal flag (absent terminal means wait).
func ValidateBundle(b Bundle) error {
	if b == nil {
		return ErrNullBundle
	}

	for _, key := range []string{KeyExecutable, KeyArguments, KeyVersionCode} {
		if !b.Has(key) {
			return fmt.Errorf("%w: the bundle must contain extra %s", ErrInvalidBundle, key)
		}
	}

	if n := len(b); n < MinBundleKeys || n > MaxBundleKeys {
		return fmt.Errorf("%w: the bundle must contain %d-%d keys, but currently contains %d keys",
			ErrInvalidBundle, MinBundleKeys, MaxBundleKeys, n)
	}

	if b.GetString(KeyExecutable) == "" {
		return fmt.Errorf("%w: the bundle extra %s appears to be null or empty, it must be a non-empty string",
			ErrInvalidBundle, KeyExecutable)
	}

	if b.GetInt(KeyVersionCode, 0) != b.GetInt(KeyVersionCode, 1) {
		return fmt.Errorf("%w: the bundle extra %s appears to be the wrong type, it must be an int",
			ErrInvalidBundle, KeyVersionCode)
	}

	if !b.Has(KeyWaitForResult) {
		if b.Has(KeyTerminal) {
			b[KeyWaitForResult] = !b.GetBool(KeyTerminal)
		} else {
			b[KeyWaitForResult] = true
		}
	}

	return nil
}

// GenerateBundle builds a bundle for a configured action.
func GenerateBundle(f ActionForm) Bundle {
	return Bundle{
		KeyExecutable:               f.Executable,
		KeyArguments:                f.Arguments,
		KeyWorkingDirectory:         f.WorkingDirectory,
		KeyStdin:                    f.Stdin,
		KeySessionAction:            f.SessionAction,
		KeyBackgroundCustomLogLevel: f.BackgroundCustomLogLevel,
		KeyTerminal:                 f.InTerminal,
		KeyWaitForResult:            f.WaitForResult,
		KeyVersionCode:              ProtocolVersion,
	}
}
