// Package config loads typed settings from the process environment, optionally
// seeded from a .env, YAML or JSON file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvFileVar names a file to load when no -env flag is given.
const EnvFileVar = "TOOLFLOW_ENV_FILE"

var (
	envFilePath string
	parseOnce   sync.Once
)

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

func New[T any](prefix string) (*T, error) {
	if path := resolveEnvPath(); path != "" {
		if err := exportEnvironment(path); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := exportEnvironmentIfExists(".env"); err != nil {
		return nil, fmt.Errorf("failed to load default env file: %w", err)
	}
	return Process[T](prefix)
}

// FromFile loads path into the environment and then processes prefix.
func FromFile[T any](prefix, path string) (*T, error) {
	if err := exportEnvironment(path); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return Process[T](prefix)
}

// Process reads prefix from the current environment only.
func Process[T any](prefix string) (*T, error) {
	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("process %s config: %w", prefixName(prefix), err)
	}
	return &conf, nil
}

func prefixName(prefix string) string {
	if prefix == "" {
		return "root"
	}
	return prefix
}

func resolveEnvPath() string {
	parseOnce.Do(func() {
		fs := flag.NewFlagSet("config", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		fs.StringVar(&envFilePath, "env", "", "path to .env, .yaml or .json config file")
		_ = fs.Parse(envArgs(os.Args[1:]))
	})
	if path := strings.TrimSpace(envFilePath); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(EnvFileVar))
}

// envArgs keeps only the -env flag and its value. Other flags belong to
// whoever owns the command line, such as the test runner.
func envArgs(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		switch {
		case name == "env":
			out = append(out, arg)
			if i+1 < len(args) {
				out = append(out, args[i+1])
				i++
			}
		case strings.HasPrefix(name, "env="):
			out = append(out, arg)
		}
	}
	return out
}

func exportEnvironmentIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(path)
}

// exportEnvironment copies the file's settings into the process environment.
// Nested sections become PARENT_CHILD keys. Variables that are already set
// win over the file.
func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if strings.HasPrefix(strings.ToLower(pathBase(path)), ".env") {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for key, value := range flatten("", v.AllSettings()) {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

func flatten(parent string, settings map[string]any) map[string]string {
	out := make(map[string]string, len(settings))
	for k, v := range settings {
		key := strings.ToUpper(k)
		if parent != "" {
			key = parent + "_" + key
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = fmt.Sprint(v)
	}
	return out
}

func pathBase(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
