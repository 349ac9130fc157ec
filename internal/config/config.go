// Package config assembles the application configuration from defaults, a
// YAML file, a .env file and KAVACH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/kavach/pkg/audioio"
	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/irio"
	"github.com/teslashibe/kavach/pkg/playback"
	"github.com/teslashibe/kavach/pkg/pubsub"
	"github.com/teslashibe/kavach/pkg/sensor"
	"github.com/teslashibe/kavach/pkg/voice"
	"github.com/teslashibe/kavach/pkg/web"
)

// Default locations.
const (
	DefaultDataDir = "/var/lib/kavach"
	DefaultFile    = "/etc/kavach/kavach.yaml"
)

// Config is the whole application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level"`

	// StoreDir holds the learned IR command files.
	StoreDir string `yaml:"store_dir" json:"store_dir"`

	// Journal is the SQLite event journal path. Empty disables it.
	Journal string `yaml:"journal" json:"journal"`

	IR       irio.Config       `yaml:"ir" json:"ir"`
	Learn    ir.LearnConfig    `yaml:"learn" json:"learn"`
	Transmit ir.TransmitConfig `yaml:"transmit" json:"transmit"`
	Audio    audioio.Config    `yaml:"audio" json:"audio"`
	Playback playback.Config   `yaml:"playback" json:"playback"`
	Voice    voice.Config      `yaml:"voice" json:"voice"`
	MQTT     pubsub.Config     `yaml:"mqtt" json:"mqtt"`
	Sensor   sensor.Config     `yaml:"sensor" json:"sensor"`
	Web      web.Config        `yaml:"web" json:"web"`
	Display  web.DisplayConfig `yaml:"display" json:"display"`
}

// Default returns the device configuration.
func Default() Config {
	cfg := Config{
		LogLevel: "info",
		StoreDir: filepath.Join(DefaultDataDir, "spiffs"),
		Journal:  filepath.Join(DefaultDataDir, "journal.db"),
		IR:       irio.DefaultConfig(),
		Learn:    ir.DefaultLearnConfig(),
		Transmit: ir.DefaultTransmitConfig(),
		Audio:    audioio.DefaultConfig(),
		Playback: playback.DefaultConfig(),
		Voice:    voice.DefaultConfig(),
		MQTT:     pubsub.DefaultConfig(),
		Sensor:   sensor.DefaultConfig(),
		Web:      web.DefaultConfig(),
		Display:  web.DefaultDisplayConfig(),
	}
	cfg.Learn.Device = cfg.IR.RXDevice
	return cfg
}

// Load builds the configuration. path may be empty, in which case
// KAVACH_CONFIG or DefaultFile is read if it exists. An explicit path that
// does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = getEnv("KAVACH_CONFIG", DefaultFile)
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	if cfg.Display.WakePrompt == "" {
		cfg.Display.WakePrompt = cfg.Voice.WakePrompt
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("KAVACH_LOG_LEVEL", c.LogLevel)
	c.StoreDir = getEnv("KAVACH_STORE_DIR", c.StoreDir)
	c.Journal = getEnv("KAVACH_JOURNAL", c.Journal)

	if b := getEnv("KAVACH_BACKEND", ""); b != "" {
		if err := c.SetBackend(b); err != nil {
			warn("KAVACH_BACKEND", err)
		}
	}
	c.IR.RXDevice = getEnv("KAVACH_IR_RX_DEVICE", c.IR.RXDevice)
	c.IR.TXDevice = getEnv("KAVACH_IR_TX_DEVICE", c.IR.TXDevice)
	c.Learn.Device = c.IR.RXDevice
	c.Learn.Count = getEnvInt("KAVACH_LEARN_COUNT", c.Learn.Count)
	c.Learn.Timeout = getEnvDuration("KAVACH_LEARN_TIMEOUT", c.Learn.Timeout)

	c.Audio.Device = getEnv("KAVACH_AUDIO_DEVICE", c.Audio.Device)
	c.Audio.MixerControl = getEnv("KAVACH_MIXER_CONTROL", c.Audio.MixerControl)
	c.Playback.Volume = getEnvInt("KAVACH_VOLUME", c.Playback.Volume)
	c.Playback.VoiceConfirm = getEnvBool("KAVACH_VOICE_CONFIRM", c.Playback.VoiceConfirm)
	if v := getEnv("KAVACH_LANGUAGE", ""); v != "" {
		c.Playback.Language = playback.ParseLanguage(v)
	}

	c.Voice.Input = getEnv("KAVACH_VOICE_INPUT", c.Voice.Input)
	c.Voice.ListenTimeout = getEnvDuration("KAVACH_LISTEN_TIMEOUT", c.Voice.ListenTimeout)

	c.MQTT.Broker = getEnv("KAVACH_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("KAVACH_MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("KAVACH_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("KAVACH_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.Prefix = getEnv("KAVACH_MQTT_PREFIX", c.MQTT.Prefix)
	c.MQTT.SensorTopic = getEnv("KAVACH_SENSOR_TOPIC", c.MQTT.SensorTopic)
	c.MQTT.SensorInterval = getEnvDuration("KAVACH_SENSOR_INTERVAL", c.MQTT.SensorInterval)

	c.Sensor.Device = getEnv("KAVACH_SENSOR_DEVICE", c.Sensor.Device)
	c.Web.Addr = getEnv("KAVACH_WEB_ADDR", c.Web.Addr)
}

// SetBackend points every hardware component at one backend: "mock",
// "auto" or "hardware".
func (c *Config) SetBackend(name string) error {
	switch name {
	case "mock":
		c.IR.Backend = irio.BackendMock
		c.Audio.Backend = audioio.BackendMock
		c.Sensor.Backend = "mock"
	case "auto":
		c.IR.Backend = irio.BackendAuto
		c.Audio.Backend = audioio.BackendAuto
		c.Sensor.Backend = "auto"
	case "hardware":
		c.IR.Backend = irio.BackendLIRC
		c.Audio.Backend = audioio.BackendAplay
		c.Sensor.Backend = "iio"
	default:
		return fmt.Errorf("unknown backend %q (want mock, auto or hardware)", name)
	}
	return nil
}

// Validate checks every component configuration.
func (c *Config) Validate() error {
	if c.StoreDir == "" {
		return errors.New("store_dir is required")
	}
	checks := []struct {
		name string
		err  error
	}{
		{"learn", c.Learn.Validate()},
		{"transmit", c.Transmit.Validate()},
		{"audio", c.Audio.Validate()},
		{"playback", c.Playback.Validate()},
		{"voice", c.Voice.Validate()},
		{"mqtt", c.MQTT.Validate()},
		{"web", c.Web.Validate()},
	}
	for _, ch := range checks {
		if ch.err != nil {
			return fmt.Errorf("%s config: %w", ch.name, ch.err)
		}
	}

	// The sink runs at a fixed rate, so upsampled assets must land on it.
	if want := playback.AssetSampleRate * c.Playback.UpsampleFactor; c.Audio.SampleRate != want {
		return fmt.Errorf("audio config: sample_rate %d does not match playback upsample_factor %d (want %d)",
			c.Audio.SampleRate, c.Playback.UpsampleFactor, want)
	}
	return nil
}
