package websocket

import (
	"fmt"
	"strings"
	"time"

	"RiderGuard/pkg/util"
)

// Config tunes the hub and every connection attached to it.
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	// a connection that has not answered a ping for this long is closed
	ConnectionTimeout time.Duration
	// capacity of each subscriber's outbound queue
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int
	EnableCompression bool
	CompressionLevel  int
	// drop a message immediately when the queue is full instead of waiting SendTimeout
	DropOnFull bool
	// close slow subscribers instead of only dropping their messages
	CloseOnBackpressure bool
	SendTimeout         time.Duration
	WriteTimeout        time.Duration
	// empty means any origin
	AllowedOrigins []string
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    DefaultMaxConnections,
		HeartbeatInterval: DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout: DefaultConnectionTimeout * time.Second,
		MessageBufferSize: DefaultMessageBufferSize,
		ReadBufferSize:    DefaultReadBufferSize,
		WriteBufferSize:   DefaultWriteBufferSize,
		MaxMessageSize:    DefaultMaxMessageSize,
		DropOnFull:        true,
		SendTimeout:       DefaultSendTimeoutMs * time.Millisecond,
		WriteTimeout:      DefaultWriteTimeout * time.Second,
	}
}

// LoadConfigFromEnv overlays WEBSOCKET_* variables on DefaultConfig.
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if maxConnections := util.GetIntEnv(EnvWebSocketMaxConnections); maxConnections > 0 {
		config.MaxConnections = maxConnections
	}
	if heartbeatInterval := util.GetIntEnv(EnvWebSocketHeartbeatInterval); heartbeatInterval > 0 {
		config.HeartbeatInterval = time.Duration(heartbeatInterval) * time.Second
	}
	if connectionTimeout := util.GetIntEnv(EnvWebSocketConnectionTimeout); connectionTimeout > 0 {
		config.ConnectionTimeout = time.Duration(connectionTimeout) * time.Second
	}
	if messageBufferSize := util.GetIntEnv(EnvWebSocketMessageBufferSize); messageBufferSize > 0 {
		config.MessageBufferSize = int(messageBufferSize)
	}
	if enableCompression := util.GetEnv(EnvWebSocketEnableCompression); enableCompression != "" {
		config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression)
	}
	if dropOnFull := util.GetEnv(EnvWebSocketDropOnFull); dropOnFull != "" {
		config.DropOnFull = util.GetBoolEnv(EnvWebSocketDropOnFull)
	}
	if compressionLevel := util.GetIntEnv(EnvWebSocketCompressionLevel); compressionLevel != 0 {
		config.CompressionLevel = int(compressionLevel)
	}
	if readBuf := util.GetIntEnv(EnvWebSocketReadBufferSize); readBuf > 0 {
		config.ReadBufferSize = int(readBuf)
	}
	if writeBuf := util.GetIntEnv(EnvWebSocketWriteBufferSize); writeBuf > 0 {
		config.WriteBufferSize = int(writeBuf)
	}
	if maxMsg := util.GetIntEnv(EnvWebSocketMaxMessageSize); maxMsg > 0 {
		config.MaxMessageSize = int(maxMsg)
	}
	if closeOnBp := util.GetEnv(EnvWebSocketCloseOnBackpressure); closeOnBp != "" {
		config.CloseOnBackpressure = util.GetBoolEnv(EnvWebSocketCloseOnBackpressure)
	}
	if sendTimeoutMs := util.GetIntEnv(EnvWebSocketSendTimeoutMs); sendTimeoutMs > 0 {
		config.SendTimeout = time.Duration(sendTimeoutMs) * time.Millisecond
	}
	if origins := util.GetEnv(EnvWebSocketAllowedOrigins); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	return config
}

// ValidateConfig checks that config can drive a hub.
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config must not be nil")
	}
	if config.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if config.MessageBufferSize <= 0 {
		return fmt.Errorf("message buffer size must be positive")
	}
	if config.CompressionLevel < -2 || config.CompressionLevel > 9 {
		return fmt.Errorf("compression level must be between -2 and 9")
	}
	if config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 {
		return fmt.Errorf("read/write buffer sizes must be positive")
	}
	if config.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}
	if config.HeartbeatInterval >= config.ConnectionTimeout {
		return fmt.Errorf("heartbeat interval must be shorter than connection timeout")
	}
	if !config.DropOnFull && config.SendTimeout <= 0 {
		return fmt.Errorf("send timeout is required when drop-on-full is disabled")
	}
	return nil
}

// GetConfigSummary is reported by the stats endpoint.
func GetConfigSummary(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"max_connections":       config.MaxConnections,
		"heartbeat_interval":    config.HeartbeatInterval.String(),
		"connection_timeout":    config.ConnectionTimeout.String(),
		"message_buffer_size":   config.MessageBufferSize,
		"read_buffer_size":      config.ReadBufferSize,
		"write_buffer_size":     config.WriteBufferSize,
		"max_message_size":      config.MaxMessageSize,
		"enable_compression":    config.EnableCompression,
		"drop_on_full":          config.DropOnFull,
		"compression_level":     config.CompressionLevel,
		"close_on_backpressure": config.CloseOnBackpressure,
		"send_timeout":          config.SendTimeout.String(),
	}
}

// CloneConfig returns a deep copy of config.
func CloneConfig(config *Config) *Config {
	if config == nil {
		return nil
	}
	c := *config
	c.AllowedOrigins = append([]string(nil), config.AllowedOrigins...)
	return &c
}

// MergeConfig overlays the non-zero fields of later configs onto the first.
// Booleans are always taken from the later config.
func MergeConfig(configs ...*Config) *Config {
	if len(configs) == 0 {
		return DefaultConfig()
	}
	result := CloneConfig(configs[0])
	if result == nil {
		result = DefaultConfig()
	}

	for _, config := range configs[1:] {
		if config == nil {
			continue
		}
		if config.MaxConnections > 0 {
			result.MaxConnections = config.MaxConnections
		}
		if config.HeartbeatInterval > 0 {
			result.HeartbeatInterval = config.HeartbeatInterval
		}
		if config.ConnectionTimeout > 0 {
			result.ConnectionTimeout = config.ConnectionTimeout
		}
		if config.MessageBufferSize > 0 {
			result.MessageBufferSize = config.MessageBufferSize
		}
		if config.ReadBufferSize > 0 {
			result.ReadBufferSize = config.ReadBufferSize
		}
		if config.WriteBufferSize > 0 {
			result.WriteBufferSize = config.WriteBufferSize
		}
		if config.MaxMessageSize > 0 {
			result.MaxMessageSize = config.MaxMessageSize
		}
		if config.CompressionLevel != 0 {
			result.CompressionLevel = config.CompressionLevel
		}
		if config.SendTimeout > 0 {
			result.SendTimeout = config.SendTimeout
		}
		if config.WriteTimeout > 0 {
			result.WriteTimeout = config.WriteTimeout
		}
		if len(config.AllowedOrigins) > 0 {
			result.AllowedOrigins = append([]string(nil), config.AllowedOrigins...)
		}
		result.EnableCompression = config.EnableCompression
		result.DropOnFull = config.DropOnFull
		result.CloseOnBackpressure = config.CloseOnBackpressure
	}
	return result
}
