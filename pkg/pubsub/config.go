// Package pubsub connects the assistant to an MQTT broker: help and
// appliance commands and sensor readings go out, gas and intruder alerts
// and liveness pings come in.
package pubsub

import (
	"fmt"
	"strings"
	"time"
)

// Config holds MQTT client configuration.
type Config struct {
	// Broker is a URI or a bare host name.
	// Examples: "mqtt.fabcloud.org", "mqtt://10.0.0.5:1883", "mqtts://broker:8883"
	Broker string `yaml:"broker" json:"broker"`

	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	// Prefix is the topic prefix for the fixed topics (ping, pong, gas, intruder).
	Prefix string `yaml:"prefix" json:"prefix"`

	// Outgoing topics. Empty values are derived from Prefix.
	HelpTopic       string `yaml:"help_topic" json:"help_topic"`
	AppliancesTopic string `yaml:"appliances_topic" json:"appliances_topic"`
	SensorTopic     string `yaml:"sensor_topic" json:"sensor_topic"`

	// SensorInterval is how often temperature and humidity are published
	// while connected. Zero disables sensor publishing.
	SensorInterval time.Duration `yaml:"sensor_interval" json:"sensor_interval"`

	KeepAlive         time.Duration `yaml:"keep_alive" json:"keep_alive"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`
}

// DefaultConfig returns a Config with the device defaults.
func DefaultConfig() Config {
	return Config{
		Broker:            "mqtt.fabcloud.org",
		ClientID:          "kavach",
		Prefix:            "fabacademy/kavach",
		SensorInterval:    30 * time.Second,
		KeepAlive:         60 * time.Second,
		ConnectTimeout:    10 * time.Second,
		ReconnectInterval: 5 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if c.SensorInterval < 0 {
		return fmt.Errorf("sensor_interval must not be negative")
	}
	return nil
}

// BrokerURI returns the normalised broker address.
func (c *Config) BrokerURI() string {
	return NormalizeBrokerURI(c.Broker)
}

// NormalizeBrokerURI turns a bare host name into mqtt://host:1883.
// Values already starting with mqtt:// or mqtts:// are returned unchanged.
func NormalizeBrokerURI(broker string) string {
	if strings.HasPrefix(broker, "mqtt://") || strings.HasPrefix(broker, "mqtts://") {
		return broker
	}
	return "mqtt://" + broker + ":1883"
}
