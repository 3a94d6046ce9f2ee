package cfg

// StaticLoader returns a fixed configuration. Tests and embedding callers use it instead of
// reading files and the environment.
type StaticLoader struct {
	Config *Config
}

func NewStaticLoader(config *Config) (*StaticLoader, error) {
	if config == nil {
		config = Default()
	}
	return &StaticLoader{Config: config}, nil
}

func (sl *StaticLoader) Load() (*Config, error) {
	copied := *sl.Config
	copied.Kafka.Brokers = append([]string(nil), sl.Config.Kafka.Brokers...)
	return &copied, nil
}
