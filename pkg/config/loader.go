package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName      = ".pyconv"
	configType      = "yaml"
	envPrefix       = "PYCONV"
	envKeySeparator = "_"

	// sourceEnvOnly names the settings origin when no config file was read.
	sourceEnvOnly = "defaults and environment"
)

// LoadError reports settings that could not be read, decoded or accepted,
// naming the config file they came from.
type LoadError struct {
	Err error
	// Source is the config file path, or a description of the origin
	// when no file was read.
	Source string
	// Step is one of "read", "decode" or "validate".
	Step string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s config (%s): %v", e.Step, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadConfig merges defaults, the config file and PYCONV_* variables.
//
// An explicit configPath must exist. Without one, .pyconv.yaml is looked
// up in the working directory, then in $HOME; a missing file there only
// means defaults apply. Errors are *LoadError values.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := newViper(configPath)

	source := sourceEnvOnly

	if err := viperCfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, &LoadError{Step: "read", Source: describeSource(configPath), Err: err}
		}
	}

	if used := viperCfg.ConfigFileUsed(); used != "" {
		source = used
	}

	var cfg Config

	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, &LoadError{Step: "decode", Source: source, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Step: "validate", Source: source, Err: err}
	}

	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)

		return viperCfg
	}

	viperCfg.SetConfigName(configName)
	viperCfg.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		viperCfg.AddConfigPath(home)
	}

	return viperCfg
}

func describeSource(configPath string) string {
	if configPath == "" {
		return configName + "." + configType
	}

	return configPath
}

// applyDefaults registers every key so AutomaticEnv can override keys the
// config file does not mention.
func applyDefaults(viperCfg *viper.Viper) {
	defaults := Default()

	viperCfg.SetDefault("convert.workers", defaults.Convert.Workers)
	viperCfg.SetDefault("convert.strict", defaults.Convert.Strict)
	viperCfg.SetDefault("convert.copy_source", defaults.Convert.CopySource)
	viperCfg.SetDefault("convert.wrap_source_file", defaults.Convert.WrapSourceFile)

	viperCfg.SetDefault("output.pretty", defaults.Output.Pretty)
	viperCfg.SetDefault("output.indent", defaults.Output.Indent)
	viperCfg.SetDefault("output.report", defaults.Output.Report)
	viperCfg.SetDefault("output.report_file", defaults.Output.ReportFile)

	viperCfg.SetDefault("logging.level", defaults.Logging.Level)
	viperCfg.SetDefault("logging.json", defaults.Logging.JSON)

	viperCfg.SetDefault("telemetry.otlp_endpoint", defaults.Telemetry.OTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_insecure", defaults.Telemetry.OTLPInsecure)
	viperCfg.SetDefault("telemetry.metrics_textfile", defaults.Telemetry.MetricsTextfile)
}
