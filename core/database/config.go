package database

// Config holds connection pool settings shared by every workspace connection.
// Connection targets themselves come from dataset paths.
type Config struct {
	// TimeoutSeconds bounds connection setup, reads, writes and the initial ping.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// MaxIdleConns is the idle pool size for server databases.
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"10"`
	// MaxOpenConns caps open connections for server databases.
	MaxOpenConns int `mapstructure:"max_open_conns" default:"100"`
}

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)
