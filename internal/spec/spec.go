package spec

type StdoutSink struct {
	PrintCounter  bool `yaml:"print_counter"`
	AckBatchSize  int  `yaml:"ack_batch_size"`
	AckFlushMS    int  `yaml:"ack_flush_ms"`
	ValueMaxBytes int  `yaml:"value_max_bytes"`
}

type KafkaSink struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	RequiredAcks int16    `yaml:"required_acks"` // 0, 1, -1
}

type sinkConfigs struct {
	Stdout StdoutSink `yaml:"stdout"`
	Kafka  KafkaSink  `yaml:"kafka"`
}

type StreamSection struct {
	HighWaterMark int `yaml:"high_water_mark"`
}

type TransformerSpec struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"` // identity, uppercase, json_tag, drop_empty, trailer
	TimeoutMS int               `yaml:"timeout_ms"`
	Params    map[string]string `yaml:"params"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Kind   string `yaml:"kind"`   // kafka | stdin
		Driver string `yaml:"driver"` // kafka only: sarama
		Config string `yaml:"config"` // kafka only: path to the koanf source config
	} `yaml:"source"`

	Stream StreamSection `yaml:"stream"`

	// Ordered list of stages applied between source and sinks.
	Transformers []TransformerSpec `yaml:"transformers"`

	Sinks       []string    `yaml:"sinks"`
	SinkConfigs sinkConfigs `yaml:"sink_configs"`
}
