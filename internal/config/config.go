package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/recognizer"
)

const EnvPrefix = "PLATETRACK"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Session    SessionConfig    `mapstructure:"session"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Gate       GateConfig       `mapstructure:"gate"`
	Queue      QueueConfig      `mapstructure:"queue"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	GinMode         string        `mapstructure:"gin_mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type MatchingConfig struct {
	Threshold int `mapstructure:"threshold"`
}

type DetectionConfig struct {
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	InferenceSize   int     `mapstructure:"inference_size"`
	MaxFrameSide    int     `mapstructure:"max_frame_side"`
	PlateClassID    int     `mapstructure:"plate_class_id"`
	FilterByClass   bool    `mapstructure:"filter_by_class"`
	PadX            float64 `mapstructure:"pad_x"`
	PadY            float64 `mapstructure:"pad_y"`
}

type RecognizerConfig struct {
	Backend           string  `mapstructure:"backend"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	TesseractLanguage string  `mapstructure:"tesseract_language"`
}

type WorkerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type SessionConfig struct {
	Mode            string        `mapstructure:"mode"`
	IncludeOCRDebug bool          `mapstructure:"include_ocr_debug"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

func (d DatabaseConfig) Enabled() bool { return d.DSN != "" }

type Operator struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Operators []Operator    `mapstructure:"operators"`
}

func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type GateConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Topic    string `mapstructure:"topic"`
}

type QueueConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	WaitSeconds int32  `mapstructure:"wait_seconds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 16<<20)

	v.SetDefault("cors.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("registry.path", "data/trusted_plates.json")

	v.SetDefault("matching.threshold", 2)

	v.SetDefault("detection.confidence_floor", 0.25)
	v.SetDefault("detection.inference_size", 640)
	v.SetDefault("detection.max_frame_side", 0)
	v.SetDefault("detection.plate_class_id", 0)
	v.SetDefault("detection.filter_by_class", true)
	v.SetDefault("detection.pad_x", 0.10)
	v.SetDefault("detection.pad_y", 0.10)

	v.SetDefault("recognizer.backend", string(recognizer.BackendWorker))
	v.SetDefault("recognizer.min_confidence", 0)
	v.SetDefault("recognizer.tesseract_language", "eng")

	v.SetDefault("worker.command", "python3")
	v.SetDefault("worker.args", []string{"-u", "python/plate_worker.py"})

	v.SetDefault("session.mode", string(anpr.ModeMulti))
	v.SetDefault("session.include_ocr_debug", false)
	v.SetDefault("session.max_message_bytes", 8<<20)
	v.SetDefault("session.write_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("aws.region", "ap-southeast-1")

	v.SetDefault("gate.enabled", false)
	v.SetDefault("gate.endpoint", "")
	v.SetDefault("gate.topic", "platetrack/gate/command")

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.url", "")
	v.SetDefault("queue.wait_seconds", 20)
}

// Load reads configuration from defaults, an optional file, a .env file and
// PLATETRACK_* environment variables, later sources winning.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Matching.Threshold < 0 {
		errs = append(errs, fmt.Errorf("matching.threshold must be >= 0, got %d", c.Matching.Threshold))
	}
	if c.Detection.ConfidenceFloor < 0 || c.Detection.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("detection.confidence_floor must be in [0,1], got %v", c.Detection.ConfidenceFloor))
	}
	if c.Detection.PadX < 0 || c.Detection.PadY < 0 {
		errs = append(errs, errors.New("detection padding must be >= 0"))
	}
	if c.Detection.InferenceSize <= 0 {
		errs = append(errs, fmt.Errorf("detection.inference_size must be > 0, got %d", c.Detection.InferenceSize))
	}
	if c.Detection.MaxFrameSide < 0 {
		errs = append(errs, fmt.Errorf("detection.max_frame_side must be >= 0, got %d", c.Detection.MaxFrameSide))
	}
	if _, err := recognizer.ParseBackend(c.Recognizer.Backend); err != nil {
		errs = append(errs, err)
	}
	if !anpr.Mode(c.Session.Mode).Valid() {
		errs = append(errs, fmt.Errorf("session.mode must be single or multi, got %q", c.Session.Mode))
	}
	if c.Registry.Path == "" {
		errs = append(errs, errors.New("registry.path is required"))
	}
	if c.Gate.Enabled && c.Gate.Topic == "" {
		errs = append(errs, errors.New("gate.topic is required when the gate is enabled"))
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required when the queue is enabled"))
	}

	return errors.Join(errs...)
}
