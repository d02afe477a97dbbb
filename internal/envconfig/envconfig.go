// Package envconfig binds per-tool environment variables and a YAML
// config file onto the runtime's configuration structs. Env vars take
// precedence; a value that fails to parse is logged at debug level and
// the existing (YAML or zero-value default) setting is kept.
package envconfig

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Values holds the parsed, tool-prefixed environment overrides.
type Values struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
	ContextSize *int
}

// Load reads <TOOL>_MODEL, <TOOL>_TEMPERATURE, <TOOL>_MAX_TOKENS, and
// <TOOL>_CONTEXT_SIZE from the process environment. toolPrefix is
// upper-cased automatically, e.g. Load("ollm") reads OLLM_MODEL.
func Load(toolPrefix string) Values {
	prefix := strings.ToUpper(toolPrefix)
	var v Values

	if model := os.Getenv(prefix + "_MODEL"); model != "" {
		v.Model = model
	}

	if raw := os.Getenv(prefix + "_TEMPERATURE"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			v.Temperature = &f
		} else {
			log.Printf("envconfig: ignoring %s_TEMPERATURE=%q: %v", prefix, raw, err)
		}
	}

	if raw := os.Getenv(prefix + "_MAX_TOKENS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v.MaxTokens = &n
		} else {
			log.Printf("envconfig: ignoring %s_MAX_TOKENS=%q: %v", prefix, raw, err)
		}
	}

	if raw := os.Getenv(prefix + "_CONTEXT_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v.ContextSize = &n
		} else {
			log.Printf("envconfig: ignoring %s_CONTEXT_SIZE=%q: %v", prefix, raw, err)
		}
	}

	return v
}

// ApplyTo overlays non-zero fields of v onto a generic settings map,
// leaving existing (e.g. YAML-sourced) keys untouched where v has no
// override. Callers typically follow this with their own typed decode.
func (v Values) ApplyTo(settings map[string]any) {
	if v.Model != "" {
		settings["model"] = v.Model
	}
	if v.Temperature != nil {
		settings["temperature"] = *v.Temperature
	}
	if v.MaxTokens != nil {
		settings["maxTokens"] = *v.MaxTokens
	}
	if v.ContextSize != nil {
		settings["contextSize"] = *v.ContextSize
	}
}

func (v Values) String() string {
	var parts []string
	if v.Model != "" {
		parts = append(parts, "model="+v.Model)
	}
	if v.Temperature != nil {
		parts = append(parts, fmt.Sprintf("temperature=%v", *v.Temperature))
	}
	if v.MaxTokens != nil {
		parts = append(parts, fmt.Sprintf("maxTokens=%d", *v.MaxTokens))
	}
	if v.ContextSize != nil {
		parts = append(parts, fmt.Sprintf("contextSize=%d", *v.ContextSize))
	}
	return strings.Join(parts, " ")
}
