package envconfig

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of an ollm.yaml config file, covering
// the five configuration surfaces from the configuration section.
type FileConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`

	Session struct {
		MaxSessions int `yaml:"maxSessions"`
	} `yaml:"session"`

	Compression struct {
		TargetTokens         int     `yaml:"targetTokens"`
		PreserveRecentTokens int     `yaml:"preserveRecentTokens"`
		Threshold            float64 `yaml:"threshold"`
	} `yaml:"compression"`

	LoopDetection struct {
		MaxTurns        int `yaml:"maxTurns"`
		RepeatThreshold int `yaml:"repeatThreshold"`
	} `yaml:"loopDetection"`

	Discovery struct {
		MaxDepth        *int     `yaml:"maxDepth"`
		ExcludePatterns []string `yaml:"excludePatterns"`
	} `yaml:"discovery"`

	Environment struct {
		AllowList    []string `yaml:"allowList"`
		DenyPatterns []string `yaml:"denyPatterns"`
	} `yaml:"environment"`
}

// LoadFile reads and parses a YAML config file at path. A missing file
// returns a zero-value FileConfig and no error, matching the env-loader's
// silent-skip behavior. A parse failure is logged and the zero value is
// returned rather than propagated, so a broken config file never blocks
// startup.
func LoadFile(path string) FileConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("envconfig: ignoring unparsable config file %s: %v", path, err)
		return FileConfig{}
	}
	return cfg
}
