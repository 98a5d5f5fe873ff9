package stats

// Config contains Redis counter configuration
type Config struct {
	RedisURL       string `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Snapshot is the current value of every counter
type Snapshot struct {
	// Hits maps a rule expression to how many values it masked
	Hits map[string]int64 `json:"hits"`
	// Signals maps a signal kind to how often it was raised
	Signals map[string]int64 `json:"signals"`
}
