package audit

import "time"

// Record is one persisted masking signal
type Record struct {
	ID         int64     `db:"id" json:"id"`
	Kind       string    `db:"kind" json:"kind"`
	Expression string    `db:"expression" json:"expression"`
	Strategy   string    `db:"strategy" json:"strategy"`
	Count      int       `db:"match_count" json:"count"`
	Detail     string    `db:"detail" json:"detail"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// KindCount is the number of stored signals of one kind
type KindCount struct {
	Kind  string `db:"kind" json:"kind"`
	Count int64  `db:"total" json:"count"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}
