// Package config reads the warden's configuration once at startup.
// Everything is environment-sourced the way the RunPod image wires it;
// an optional TOML file can override the same keys for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/personaplex/warden/internal/logger"
	"github.com/personaplex/warden/internal/process"
)

// Defaults for the PersonaPlex server and supervision timing.
const (
	DefaultPort         = 8998
	DefaultSSLDir       = "/app/ssl"
	DefaultServerBin    = "/app/moshi/.venv/bin/python"
	DefaultServerModule = "moshi.server"

	DefaultReadinessTimeout = 120 * time.Second
	DefaultHealthInterval   = 5 * time.Second
	DefaultLivenessTimeout  = 5 * time.Second
	DefaultRestartTimeout   = 60 * time.Second
	DefaultStopGrace        = 10 * time.Second
)

// Config holds one supervision deployment's settings. It is read once
// and treated as immutable afterwards.
type Config struct {
	// Server launch
	ServerBin    string `mapstructure:"server_bin"`
	ServerModule string `mapstructure:"server_module"`
	Port         int    `mapstructure:"port"`
	SSLDir       string `mapstructure:"ssl_dir"`
	AutoGenTLS   bool   `mapstructure:"auto_gen_tls"`
	HFToken      string `mapstructure:"hf_token"`
	CPUOffload   bool   `mapstructure:"cpu_offload"`

	// Supervision timing
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout"`
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	LivenessTimeout  time.Duration `mapstructure:"liveness_timeout"`
	RestartTimeout   time.Duration `mapstructure:"restart_timeout"`
	StopGrace        time.Duration `mapstructure:"stop_grace"`

	// RunPod platform
	PublicIP     string        `mapstructure:"public_ip"`
	PodIP        string        `mapstructure:"pod_ip"`
	PodID        string        `mapstructure:"pod_id"`
	APIKey       string        `mapstructure:"api_key"`
	JobTakeURL   string        `mapstructure:"job_take_url"`
	JobDoneURL   string        `mapstructure:"job_done_url"`
	JobStreamURL string        `mapstructure:"job_stream_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Warden surfaces
	ListenAddr string        `mapstructure:"listen_addr"`
	HistoryDSN string        `mapstructure:"history_dsn"`
	LogLevel   string        `mapstructure:"log_level"`
	ServerLog  logger.Config `mapstructure:"server_log"`
}

// envBindings maps config keys to the environment variables the RunPod
// image and the platform itself export.
var envBindings = map[string]string{
	"server_bin":    "PERSONAPLEX_SERVER_BIN",
	"server_module": "PERSONAPLEX_SERVER_MODULE",
	"port":          "PERSONAPLEX_PORT",
	"ssl_dir":       "SSL_DIR",
	"auto_gen_tls":  "SSL_AUTO_GENERATE",
	"hf_token":      "HF_TOKEN",
	"cpu_offload":   "CPU_OFFLOAD",

	"readiness_timeout": "WARDEN_READINESS_TIMEOUT",
	"health_interval":   "WARDEN_HEALTH_INTERVAL",
	"liveness_timeout":  "WARDEN_LIVENESS_TIMEOUT",
	"restart_timeout":   "WARDEN_RESTART_TIMEOUT",
	"stop_grace":        "WARDEN_STOP_GRACE",

	"public_ip":      "RUNPOD_PUBLIC_IP",
	"pod_ip":         "RUNPOD_POD_IP",
	"pod_id":         "RUNPOD_POD_ID",
	"api_key":        "RUNPOD_AI_API_KEY",
	"job_take_url":   "RUNPOD_WEBHOOK_GET_JOB",
	"job_done_url":   "RUNPOD_WEBHOOK_POST_OUTPUT",
	"job_stream_url": "RUNPOD_WEBHOOK_POST_STREAM",
	"poll_interval":  "WARDEN_POLL_INTERVAL",

	"listen_addr":    "WARDEN_LISTEN",
	"history_dsn":    "WARDEN_HISTORY_DSN",
	"log_level":      "WARDEN_LOG_LEVEL",
	"server_log.dir": "WARDEN_SERVER_LOG_DIR",
}

// Load reads configuration from the environment, optionally merged with
// a TOML file (file values lose to explicit environment variables).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_bin", DefaultServerBin)
	v.SetDefault("server_module", DefaultServerModule)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("ssl_dir", DefaultSSLDir)
	v.SetDefault("readiness_timeout", DefaultReadinessTimeout)
	v.SetDefault("health_interval", DefaultHealthInterval)
	v.SetDefault("liveness_timeout", DefaultLivenessTimeout)
	v.SetDefault("restart_timeout", DefaultRestartTimeout)
	v.SetDefault("stop_grace", DefaultStopGrace)
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("log_level", "info")

	for key, envVar := range envBindings {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Port)
	}
	return &cfg, nil
}

// ServerSpec builds the launch spec for the PersonaPlex server.
func (c *Config) ServerSpec() process.Spec {
	args := []string{
		"-m", c.ServerModule,
		"--ssl", c.SSLDir,
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(c.Port),
	}
	// CPU offload is for GPUs with insufficient VRAM.
	if c.CPUOffload {
		args = append(args, "--cpu-offload")
	}
	var extraEnv []string
	if c.HFToken != "" {
		extraEnv = append(extraEnv, "HF_TOKEN="+c.HFToken)
	}
	return process.Spec{
		Name: "personaplex",
		Path: c.ServerBin,
		Args: args,
		Env:  extraEnv,
		Log:  c.ServerLog,
	}
}

// PublicHost returns the externally reachable host: the public IP the
// platform exposes, the pod IP as fallback, localhost otherwise.
func (c *Config) PublicHost() string {
	if c.PublicIP != "" {
		return c.PublicIP
	}
	if c.PodIP != "" {
		return c.PodIP
	}
	return "localhost"
}

// PublicPort returns the externally mapped TCP port for the server port.
// The platform exposes it as RUNPOD_TCP_PORT_<port>; without a mapping
// the internal port is reachable directly.
func (c *Config) PublicPort() string {
	if mapped := os.Getenv("RUNPOD_TCP_PORT_" + strconv.Itoa(c.Port)); mapped != "" {
		return mapped
	}
	return strconv.Itoa(c.Port)
}
