package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PDFBENCH_INPUT_DIR.
const EnvPrefix = "PDFBENCH"

// CommonConfig holds the knobs every backend understands.
type CommonConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	Device        string        `mapstructure:"device" json:"device"`
	ExtraArgs     []string      `mapstructure:"extra_args" json:"extra_args"`
	ArtifactOrder []string      `mapstructure:"artifact_order" json:"artifact_order"`
}

type MineruConfig struct {
	CommonConfig `mapstructure:",squash"`
	Binary       string `mapstructure:"binary" json:"binary"`
	Method       string `mapstructure:"method" json:"method"`
}

// InferenceServerConfig describes an optional inference server the olmOCR
// adapter starts before each conversion when nothing listens on Port.
type InferenceServerConfig struct {
	Enabled      bool          `mapstructure:"enabled" json:"enabled"`
	Command      []string      `mapstructure:"command" json:"command"`
	Host         string        `mapstructure:"host" json:"host"`
	Port         int           `mapstructure:"port" json:"port"`
	StartupWait  time.Duration `mapstructure:"startup_wait" json:"startup_wait"`
	ProbeTimeout float64       `mapstructure:"probe_timeout" json:"probe_timeout"`
}

type OlmOCRConfig struct {
	CommonConfig         `mapstructure:",squash"`
	Python               string                `mapstructure:"python" json:"python"`
	Module               string                `mapstructure:"module" json:"module"`
	MaxPageErrorRate     float64               `mapstructure:"max_page_error_rate" json:"max_page_error_rate"`
	Markdown             bool                  `mapstructure:"markdown" json:"markdown"`
	Model                string                `mapstructure:"model" json:"model"`
	ModelMaxContext      int                   `mapstructure:"model_max_context" json:"model_max_context"`
	GPUMemoryUtilization float64               `mapstructure:"gpu_memory_utilization" json:"gpu_memory_utilization"`
	MaxModelLen          int                   `mapstructure:"max_model_len" json:"max_model_len"`
	TensorParallelSize   int                   `mapstructure:"tensor_parallel_size" json:"tensor_parallel_size"`
	DataParallelSize     int                   `mapstructure:"data_parallel_size" json:"data_parallel_size"`
	Server               InferenceServerConfig `mapstructure:"server" json:"server"`
}

type UnstructuredConfig struct {
	CommonConfig `mapstructure:",squash"`
	Endpoint     string `mapstructure:"endpoint" json:"endpoint"`
	Strategy     string `mapstructure:"strategy" json:"strategy"`
}

type BaselineConfig struct {
	CommonConfig `mapstructure:",squash"`
}

type BackendsConfig struct {
	Mineru       MineruConfig       `mapstructure:"mineru" json:"mineru"`
	OlmOCR       OlmOCRConfig       `mapstructure:"olmocr" json:"olmocr"`
	Unstructured UnstructuredConfig `mapstructure:"unstructured" json:"unstructured"`
	Baseline     BaselineConfig     `mapstructure:"baseline" json:"baseline"`
}

type Config struct {
	InputDir       string         `mapstructure:"input_dir" json:"input_dir"`
	OutputDir      string         `mapstructure:"output_dir" json:"output_dir"`
	ResultsPath    string         `mapstructure:"results_path" json:"results_path"`
	DBPath         string         `mapstructure:"db_path" json:"db_path"`
	Host           string         `mapstructure:"host" json:"host"`
	Port           int            `mapstructure:"port" json:"port"`
	MaxErrorLength int            `mapstructure:"max_error_length" json:"max_error_length"`
	KillGrace      time.Duration  `mapstructure:"kill_grace" json:"kill_grace"`
	Backends       BackendsConfig `mapstructure:"backends" json:"backends"`
}

func DefaultConfig() Config {
	outputDir := "output"
	return Config{
		InputDir:       "test_pdfs",
		OutputDir:      outputDir,
		DBPath:         filepath.Join(outputDir, "pdfbench.db"),
		Host:           "127.0.0.1",
		Port:           8743,
		MaxErrorLength: 300,
		KillGrace:      5 * time.Second,
		Backends: BackendsConfig{
			Mineru: MineruConfig{
				CommonConfig: CommonConfig{
					Timeout:       600 * time.Second,
					ArtifactOrder: []string{".md", ".json"},
				},
				Binary: "mineru",
				Method: "auto",
			},
			OlmOCR: OlmOCRConfig{
				CommonConfig: CommonConfig{
					Timeout:       1800 * time.Second,
					Device:        "1",
					ArtifactOrder: []string{".md", ".json"},
				},
				Python:               "python3",
				Module:               "olmocr.pipeline",
				MaxPageErrorRate:     0.3,
				Markdown:             true,
				GPUMemoryUtilization: 0.7,
				MaxModelLen:          8192,
				TensorParallelSize:   1,
				DataParallelSize:     1,
				Server: InferenceServerConfig{
					Host:         "127.0.0.1",
					Port:         30024,
					StartupWait:  60 * time.Second,
					ProbeTimeout: 2.0,
				},
			},
			Unstructured: UnstructuredConfig{
				CommonConfig: CommonConfig{
					Timeout:       900 * time.Second,
					ArtifactOrder: []string{".md", ".json"},
				},
				Endpoint: "http://127.0.0.1:8000",
				Strategy: "auto",
			},
			Baseline: BaselineConfig{
				CommonConfig: CommonConfig{
					Timeout:       600 * time.Second,
					ArtifactOrder: []string{".md", ".json"},
				},
			},
		},
	}
}

// LoadConfig layers the defaults, an optional YAML file, PDFBENCH_*
// environment variables and any flags bound in fs (highest precedence).
func LoadConfig(configFile string, fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if fs != nil {
		for key, name := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsDurationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	// db_path follows output_dir unless it was set explicitly
	def := DefaultConfig()
	if cfg.DBPath == def.DBPath && cfg.OutputDir != def.OutputDir {
		cfg.DBPath = filepath.Join(cfg.OutputDir, "pdfbench.db")
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsDurationHook decodes durations written as Go duration strings
// ("90s", "15m") and reads bare numbers as seconds, so `timeout: 600` in
// YAML or PDFBENCH_BACKENDS_MINERU_TIMEOUT=600 means ten minutes.
func secondsDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		s := strings.TrimSpace(data.(string))
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	}
	return data, nil
}

// flagKeys maps config keys to the command-line flags that override them.
var flagKeys = map[string]string{
	"input_dir":  "input",
	"output_dir": "output",
	"db_path":    "db",
	"host":       "host",
	"port":       "port",
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("input_dir", cfg.InputDir)
	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("results_path", cfg.ResultsPath)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("max_error_length", cfg.MaxErrorLength)
	v.SetDefault("kill_grace", cfg.KillGrace)

	setCommonDefaults(v, "backends.mineru", cfg.Backends.Mineru.CommonConfig)
	v.SetDefault("backends.mineru.binary", cfg.Backends.Mineru.Binary)
	v.SetDefault("backends.mineru.method", cfg.Backends.Mineru.Method)

	o := cfg.Backends.OlmOCR
	setCommonDefaults(v, "backends.olmocr", o.CommonConfig)
	v.SetDefault("backends.olmocr.python", o.Python)
	v.SetDefault("backends.olmocr.module", o.Module)
	v.SetDefault("backends.olmocr.max_page_error_rate", o.MaxPageErrorRate)
	v.SetDefault("backends.olmocr.markdown", o.Markdown)
	v.SetDefault("backends.olmocr.model", o.Model)
	v.SetDefault("backends.olmocr.model_max_context", o.ModelMaxContext)
	v.SetDefault("backends.olmocr.gpu_memory_utilization", o.GPUMemoryUtilization)
	v.SetDefault("backends.olmocr.max_model_len", o.MaxModelLen)
	v.SetDefault("backends.olmocr.tensor_parallel_size", o.TensorParallelSize)
	v.SetDefault("backends.olmocr.data_parallel_size", o.DataParallelSize)
	v.SetDefault("backends.olmocr.server.enabled", o.Server.Enabled)
	v.SetDefault("backends.olmocr.server.command", o.Server.Command)
	v.SetDefault("backends.olmocr.server.host", o.Server.Host)
	v.SetDefault("backends.olmocr.server.port", o.Server.Port)
	v.SetDefault("backends.olmocr.server.startup_wait", o.Server.StartupWait)
	v.SetDefault("backends.olmocr.server.probe_timeout", o.Server.ProbeTimeout)

	setCommonDefaults(v, "backends.unstructured", cfg.Backends.Unstructured.CommonConfig)
	v.SetDefault("backends.unstructured.endpoint", cfg.Backends.Unstructured.Endpoint)
	v.SetDefault("backends.unstructured.strategy", cfg.Backends.Unstructured.Strategy)

	setCommonDefaults(v, "backends.baseline", cfg.Backends.Baseline.CommonConfig)
}

func setCommonDefaults(v *viper.Viper, prefix string, c CommonConfig) {
	v.SetDefault(prefix+".timeout", c.Timeout)
	v.SetDefault(prefix+".device", c.Device)
	v.SetDefault(prefix+".extra_args", c.ExtraArgs)
	v.SetDefault(prefix+".artifact_order", c.ArtifactOrder)
}

// ResultsPathFor returns where the JSON report for backend is written.
func (c *Config) ResultsPathFor(backend string) string {
	if c.ResultsPath != "" {
		return c.ResultsPath
	}
	return filepath.Join(c.OutputDir, backend+"_results.json")
}

// BackendOutputDir is the root under which per-file artifact directories live.
func (c *Config) BackendOutputDir(backend string) string {
	return filepath.Join(c.OutputDir, backend)
}

func (c *Config) EnsureDirs() error {
	dirs := []string{c.OutputDir}
	if c.ResultsPath != "" {
		dirs = append(dirs, filepath.Dir(c.ResultsPath))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
