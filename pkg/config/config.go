// Package config resolves controller and client settings from defaults,
// a .env file, the environment and finally command-line flags.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"wbs-gantt/pkg/db"
)

// Controller holds everything cmd/controller needs to start.
type Controller struct {
	Addr       string
	Token      string
	Store      string // memory|sqlite|mysql|consul
	SQLitePath string
	ConsulAddr string
	MySQL      db.Config

	TLSCert  string
	TLSKey   string
	ClientCA string

	JWTSecret  string
	JWTTTL     time.Duration
	RequireJWT bool

	SweepSchedule string
	SeedFile      string
	Sample        bool
}

// Client holds the ganttctl connection settings.
type Client struct {
	Server   string
	Token    string
	CAFile   string
	Cert     string
	Key      string
	Insecure bool
	Timeout  time.Duration
}

// LoadDotEnv loads path (".env" when empty) if it exists. Values already in
// the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// ControllerFromEnv returns defaults overlaid with GANTT_* variables.
func ControllerFromEnv() Controller {
	return Controller{
		Addr:          getenv("GANTT_ADDR", ":8080"),
		Token:         os.Getenv("GANTT_TOKEN"),
		Store:         getenv("GANTT_STORE", "memory"),
		SQLitePath:    getenv("GANTT_SQLITE_PATH", "./data/gantt.db"),
		ConsulAddr:    getenv("GANTT_CONSUL_ADDR", "127.0.0.1:8500"),
		MySQL:         db.ConfigFromEnv(),
		TLSCert:       os.Getenv("GANTT_TLS_CERT"),
		TLSKey:        os.Getenv("GANTT_TLS_KEY"),
		ClientCA:      os.Getenv("GANTT_CLIENT_CA"),
		JWTSecret:     getenv("JWT_SECRET", "change-me-secret"),
		JWTTTL:        getduration("GANTT_JWT_TTL", 24*time.Hour),
		RequireJWT:    getbool("GANTT_REQUIRE_JWT", false),
		SweepSchedule: getenv("GANTT_SWEEP", "@every 1h"),
		SeedFile:      os.Getenv("GANTT_SEED"),
		Sample:        getbool("GANTT_SAMPLE", false),
	}
}

// BindFlags registers controller flags on fs with c's current values as
// defaults, so flags override the environment.
func (c *Controller) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.Token, "token", c.Token, "bootstrap auth token (optional)")
	fs.StringVar(&c.Store, "store", c.Store, "store backend: memory|sqlite|mysql|consul (consul requires build tag consul)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "sqlite database file (when store=sqlite)")
	fs.StringVar(&c.ConsulAddr, "consul-addr", c.ConsulAddr, "consul address (when store=consul)")
	fs.StringVar(&c.MySQL.DSN, "mysql-dsn", c.MySQL.DSN, "MySQL DSN (when store=mysql; overrides MYSQL_* env)")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "TLS cert path (enables HTTPS if set with --tls-key)")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "TLS key path (enables HTTPS if set with --tls-cert)")
	fs.StringVar(&c.ClientCA, "client-ca", c.ClientCA, "require and verify client certs using this CA (optional)")
	fs.BoolVar(&c.RequireJWT, "require-jwt", c.RequireJWT, "require a JWT bearer token on task and user APIs")
	fs.DurationVar(&c.JWTTTL, "jwt-ttl", c.JWTTTL, "lifetime of issued login tokens")
	fs.StringVar(&c.SweepSchedule, "sweep", c.SweepSchedule, "cron schedule for the delayed-task sweep (empty disables)")
	fs.StringVar(&c.SeedFile, "seed", c.SeedFile, "YAML file of users and tasks loaded at startup")
	fs.BoolVar(&c.Sample, "sample", c.Sample, "load the built-in sample project at startup")
}

// ClientFromEnv returns ganttctl defaults overlaid with GANTT_* variables.
func ClientFromEnv() Client {
	return Client{
		Server:   getenv("GANTT_SERVER", "http://127.0.0.1:8080"),
		Token:    os.Getenv("GANTT_TOKEN"),
		CAFile:   os.Getenv("GANTT_CA"),
		Cert:     os.Getenv("GANTT_CERT"),
		Key:      os.Getenv("GANTT_KEY"),
		Insecure: getbool("GANTT_INSECURE", false),
		Timeout:  getduration("GANTT_TIMEOUT", 10*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
