package pubsub

import "fmt"

// Fixed topics under the configured prefix.
const (
	// TopicPing is answered with "pong" on TopicPong.
	TopicPing = "ping"
	TopicPong = "pong"

	// TopicGas carries gas sensor alerts, e.g.
	// {"device":"gas_sensor","gas":99,"state":"LEAK"}
	TopicGas = "gas"

	// TopicIntruder carries motion alerts, e.g.
	// {"device":"pir_sensor","motion":"detected"}
	TopicIntruder = "intruder"

	// Default names for the configurable outgoing topics.
	TopicHelp       = "help"
	TopicAppliances = "appliances"
	TopicSensor     = "sensor"
)

// PongPayload is the reply to a ping.
const PongPayload = "pong"

// Topics builds fully-qualified topic names.
type Topics struct {
	prefix     string
	help       string
	appliances string
	sensor     string
}

// NewTopics creates a Topics helper from the config.
func NewTopics(cfg Config) *Topics {
	t := &Topics{
		prefix:     cfg.Prefix,
		help:       cfg.HelpTopic,
		appliances: cfg.AppliancesTopic,
		sensor:     cfg.SensorTopic,
	}
	if t.help == "" {
		t.help = t.join(TopicHelp)
	}
	if t.appliances == "" {
		t.appliances = t.join(TopicAppliances)
	}
	if t.sensor == "" {
		t.sensor = t.join(TopicSensor)
	}
	return t
}

func (t *Topics) join(name string) string {
	return fmt.Sprintf("%s/%s", t.prefix, name)
}

// Ping returns the full ping topic path.
func (t *Topics) Ping() string { return t.join(TopicPing) }

// Pong returns the full pong topic path.
func (t *Topics) Pong() string { return t.join(TopicPong) }

// Gas returns the full gas alert topic path.
func (t *Topics) Gas() string { return t.join(TopicGas) }

// Intruder returns the full intruder alert topic path.
func (t *Topics) Intruder() string { return t.join(TopicIntruder) }

// Help returns the help topic.
func (t *Topics) Help() string { return t.help }

// Appliances returns the appliance command topic.
func (t *Topics) Appliances() string { return t.appliances }

// Sensor returns the sensor reading topic.
func (t *Topics) Sensor() string { return t.sensor }

// Subscriptions returns the topics subscribed on every connect.
func (t *Topics) Subscriptions() []string {
	return []string{t.Ping(), t.Gas(), t.Intruder()}
}
