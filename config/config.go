/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Configuration interface {
	// Validate validates the configuration.
	// If returns error, the broker will not start.
	Validate() error
}

// Config is the broker's top-level configuration, loaded from YAML via
// Load.
type Config struct {
	Mqtt        Mqtt        `yaml:"mqtt"`
	Listeners   Listeners   `yaml:"listeners"`
	Persistence Persistence `yaml:"persistence"`
	Log         Log         `yaml:"log"`
	Tracing     Tracing     `yaml:"tracing"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, filling in defaults
// for anything left unset, then validates the result.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with every field set to its production
// default, suitable for a zero-configuration broker start.
func Default() *Config {
	return &Config{
		Mqtt: Mqtt{
			SessionExpiry:        24 * time.Hour,
			MaxPacketSize:        268435455,
			ReceiveMax:           1024,
			MaxKeepAlive:         3600,
			MaxQueueMessages:     1000,
			MaxInflight:          32,
			MaximumQoS:           2,
			RetainAvailable:      true,
			WildcardAvailable:    true,
			AllowZeroLenClientId: true,
			DeliveryMode:         "overlap",
			ReconnectStormDelay:  time.Second,
		},
		Listeners: Listeners{
			TCP: []ListenerAddr{{Address: ":1883"}},
		},
		Persistence: Persistence{
			Session:      Store{Type: "memory"},
			Subscription: Store{Type: "memory"},
			Retained:     Store{Type: "memory"},
		},
		Log: Log{Level: "info"},
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Listeners.TCP) == 0 && len(c.Listeners.WebSocket) == 0 {
		return fmt.Errorf("config: at least one listener (tcp or websocket) is required")
	}
	return nil
}

// Mqtt holds the protocol-level knobs. The broker core reads
// ReceiveMax, MaximumQoS, RetainAvailable, AllowZeroLenClientId and
// ReconnectStormDelay; the other fields are parsed and validated but
// not read by the broker. Several of them (TopicAliasMax,
// SubscriptionIDAvailable, SharedSubAvailable) describe MQTT 5
// behaviors this core does not implement for 3.1.1 clients.
type Mqtt struct {
	// SessionExpiry is the maximum session expiry interval.
	SessionExpiry time.Duration `yaml:"session_expiry"`
	// SessionExpiryCheckInterval is the interval time for session expiry checker to check whether there
	// are expired sessions.
	SessionExpiryCheckInterval time.Duration `yaml:"session_expiry_check_interval"`
	// MessageExpiry is the maximum lifetime of a queued message.
	MessageExpiry time.Duration `yaml:"message_expiry"`
	// InflightExpiry is the lifetime of an inflight message.
	InflightExpiry time.Duration `yaml:"inflight_expiry"`
	// MaxPacketSize is the maximum packet size the broker accepts from a client.
	MaxPacketSize uint32 `yaml:"max_packet_size" validate:"lte=268435455"`
	// ReceiveMax sizes the broker-wide worker pool that fans published messages out to subscribers.
	ReceiveMax uint16 `yaml:"server_receive_maximum"`
	// MaxKeepAlive is the maximum keep-alive time in seconds the broker allows.
	MaxKeepAlive uint16 `yaml:"max_keepalive"`
	TopicAliasMax uint16 `yaml:"topic_alias_maximum"`
	SubscriptionIDAvailable bool `yaml:"subscription_identifier_available"`
	SharedSubAvailable bool `yaml:"shared_subscription_available"`
	// WildcardAvailable indicates whether the broker supports wildcard subscriptions.
	WildcardAvailable bool `yaml:"wildcard_subscription_available"`
	// RetainAvailable indicates whether the broker supports retained messages.
	RetainAvailable bool `yaml:"retain_available"`
	// MaxQueueMessages is the maximum queue length of outgoing messages per client.
	MaxQueueMessages int `yaml:"max_queue_messages" validate:"gte=0"`
	// MaxInflight limits the inflight message count of the outgoing messages.
	MaxInflight uint16 `yaml:"max_inflight"`
	// MaximumQoS is the highest QoS level the broker grants on SUBSCRIBE.
	MaximumQoS uint8 `yaml:"maximum_qos" validate:"lte=2"`
	// QueueQos0Msg indicates whether to queue QoS 0 messages for an offline session.
	QueueQos0Msg bool `yaml:"queue_qos0_messages"`
	// DeliveryMode is "overlap" or "onlyonce".
	DeliveryMode string `yaml:"delivery_mode" validate:"oneof=overlap onlyonce"`
	// AllowZeroLenClientId indicates whether the broker assigns an id to a client that connects with an empty one.
	AllowZeroLenClientId bool `yaml:"allow_zero_len_client_id"`
	// ReconnectStormDelay is the minimum spacing the broker enforces
	// between two CONNECTs from the same client_id before allowing
	// session take-over, damping a client stuck in a reconnect loop.
	ReconnectStormDelay time.Duration `yaml:"reconnect_storm_delay"`
}

// ListenerAddr is one network listener's bind address.
type ListenerAddr struct {
	Address string `yaml:"address" validate:"required"`
}

// Listeners groups the broker's transport endpoints: the TCP and
// WebSocket stream variants.
type Listeners struct {
	TCP       []ListenerAddr `yaml:"tcp"`
	WebSocket []ListenerAddr `yaml:"websocket"`
}

// Store selects and configures one persistence backend.
type Store struct {
	// Type is "memory" or "redis".
	Type string `yaml:"type" validate:"oneof=memory redis"`
	Redis Redis `yaml:"redis"`
}

// Redis configures the optional go-redis-backed session store.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Persistence selects storage backends. The broker reads only Session;
// subscriptions and retained messages are always kept in memory, and
// the Subscription and Retained entries are not read.
type Persistence struct {
	Session      Store `yaml:"session"`
	Subscription Store `yaml:"subscription"`
	Retained     Store `yaml:"retained"`
}

// Log configures the zap/lumberjack logging stack (internal/xlog).
type Log struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
	FilePath    string `yaml:"file_path"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

// Tracing selects an OpenTelemetry exporter for internal/xtrace spans.
type Tracing struct {
	// Enabled turns on span export; when false the broker uses the
	// no-op tracer provider.
	Enabled bool `yaml:"enabled"`
	// Exporter is "jaeger" or "zipkin".
	Exporter     string `yaml:"exporter" validate:"omitempty,oneof=jaeger zipkin"`
	EndpointURL  string `yaml:"endpoint_url"`
	ServiceName  string `yaml:"service_name"`
}
