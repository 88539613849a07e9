// Package config loads the broker configuration from a JSON or YAML file and
// the environment.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/utils"
)

const (
	ModeTPC     = "tpc"
	ModeReactor = "reactor"

	AuditBackendMemory = "memory"
	AuditBackendMongo  = "mongo"
)

type Config struct {
	Server  ServerConfig `json:"server" yaml:"server"`
	HTTP    HTTPConfig   `json:"http" yaml:"http"`
	Audit   AuditConfig  `json:"audit" yaml:"audit"`
	Log     LogConfig    `json:"log" yaml:"log"`
	AppName string       `json:"app_name" yaml:"app_name"`
}

type ServerConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	Mode           string `json:"mode" yaml:"mode"`
	Workers        int    `json:"workers" yaml:"workers"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
	ReadBufferSize int    `json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteTimeout   string `json:"write_timeout" yaml:"write_timeout"`
	SendQueueSize  int    `json:"send_queue_size" yaml:"send_queue_size"`
	MaxFrameSize   int    `json:"max_frame_size" yaml:"max_frame_size"`
	AcceptRate     int    `json:"accept_rate" yaml:"accept_rate"`
	AcceptBurst    int    `json:"accept_burst" yaml:"accept_burst"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type AuditConfig struct {
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Backend     string      `json:"backend" yaml:"backend"`
	QueueSize   int         `json:"queue_size" yaml:"queue_size"`
	HistorySize int         `json:"history_size" yaml:"history_size"`
	HistoryTTL  string      `json:"history_ttl" yaml:"history_ttl"`
	Mongo       MongoConfig `json:"mongo" yaml:"mongo"`
}

type MongoConfig struct {
	Host               string `json:"host" yaml:"host"`
	Port               uint64 `json:"port" yaml:"port"`
	Username           string `json:"username" yaml:"username"`
	Password           string `json:"password" yaml:"password"`
	Database           string `json:"database" yaml:"database"`
	UseTLS             bool   `json:"use_tls" yaml:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout" yaml:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout" yaml:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout" yaml:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout" yaml:"operation_timeout"`
	Heartbeat          string `json:"heartbeat" yaml:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size" yaml:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size" yaml:"max_pool_size"`
}

type LogConfig struct {
	Debug bool   `json:"debug" yaml:"debug"`
	Dir   string `json:"dir" yaml:"dir"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           7777,
			Mode:           ModeTPC,
			Workers:        runtime.NumCPU(),
			MaxConnections: 10000,
			ReadBufferSize: 4096,
			WriteTimeout:   "10s",
			SendQueueSize:  256,
			MaxFrameSize:   1 << 20,
			AcceptBurst:    100,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    ":15674",
		},
		Audit: AuditConfig{
			Enabled:     true,
			Backend:     AuditBackendMemory,
			QueueSize:   1024,
			HistorySize: 100,
			HistoryTTL:  "1d",
			Mongo: MongoConfig{
				Host:               "localhost",
				Port:               27017,
				Database:           "stomp",
				ConnectTimeout:     "10s",
				SocketTimeout:      "30s",
				ConnectIdleTimeout: "5m",
				OperationTimeout:   "5s",
				Heartbeat:          "10s",
				MinPoolSize:        1,
				MaxPoolSize:        20,
			},
		},
		Log: LogConfig{
			Dir: "logs",
		},
		AppName: "stomp-broker",
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}
	if c.Server.Mode != ModeTPC && c.Server.Mode != ModeReactor {
		return NewConfigError("server.mode", fmt.Sprintf("must be %q or %q", ModeTPC, ModeReactor))
	}
	if c.Server.Workers <= 0 {
		return NewConfigError("server.workers", "must be positive")
	}
	if c.Server.MaxConnections <= 0 {
		return NewConfigError("server.max_connections", "must be positive")
	}
	if c.Server.ReadBufferSize <= 0 {
		return NewConfigError("server.read_buffer_size", "must be positive")
	}
	if _, err := utils.ParseDuration(c.Server.WriteTimeout); err != nil {
		return NewConfigError("server.write_timeout", err.Error())
	}
	if c.Server.SendQueueSize <= 0 {
		return NewConfigError("server.send_queue_size", "must be positive")
	}
	if c.Server.MaxFrameSize < 0 {
		return NewConfigError("server.max_frame_size", "cannot be negative")
	}
	if c.Server.AcceptRate < 0 || c.Server.AcceptBurst < 0 {
		return NewConfigError("server.accept_rate", "cannot be negative")
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return NewConfigError("http.addr", "required when http is enabled")
	}
	if c.Audit.Enabled {
		switch c.Audit.Backend {
		case AuditBackendMemory:
			if c.Audit.HistoryTTL != "" {
				if _, err := utils.ParseDuration(c.Audit.HistoryTTL); err != nil {
					return NewConfigError("audit.history_ttl", err.Error())
				}
			}
		case AuditBackendMongo:
			if c.Audit.Mongo.Host == "" || c.Audit.Mongo.Database == "" {
				return NewConfigError("audit.mongo", "host and database are required")
			}
			timeouts := []struct{ field, value string }{
				{"connect_timeout", c.Audit.Mongo.ConnectTimeout},
				{"socket_timeout", c.Audit.Mongo.SocketTimeout},
				{"connect_idle_timeout", c.Audit.Mongo.ConnectIdleTimeout},
				{"operation_timeout", c.Audit.Mongo.OperationTimeout},
				{"heartbeat", c.Audit.Mongo.Heartbeat},
			}
			for _, timeout := range timeouts {
				if timeout.value == "" {
					continue
				}
				if _, err := utils.ParseDuration(timeout.value); err != nil {
					return NewConfigError("audit.mongo."+timeout.field, err.Error())
				}
			}
		default:
			return NewConfigError("audit.backend", fmt.Sprintf("must be %q or %q", AuditBackendMemory, AuditBackendMongo))
		}
	}
	return nil
}

// Addr is the TCP listen address of the STOMP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return utils.MustParseDuration(s.WriteTimeout, 10*time.Second)
}

func (a AuditConfig) HistoryTTLDuration() time.Duration {
	if a.HistoryTTL == "" {
		return 0
	}
	return utils.MustParseDuration(a.HistoryTTL, 0)
}

// ConfigError reports an invalid field.
type ConfigError struct {
	Field   string
	Message string
}

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
