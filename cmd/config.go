package cmd

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/xo/dburl"

	"db-recon/internal/dialect"
	"db-recon/internal/endpoint"
	"db-recon/internal/schema"
)

// EndpointConfig is one named connection entry in the config file:
//
//	endpoints:
//	  - name: prod-mysql
//	    driver: mysql
//	    dsn: user:pass@tcp(db1:3306)/shop
//	    schema: shop
type EndpointConfig struct {
	Name     string `mapstructure:"name"`
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"`
	Schema   string `mapstructure:"schema"`
}

// findEndpointConfig resolves a --source/--target value. A value that
// matches a configured name wins; anything else is treated as a raw
// URL-style DSN whose driver dburl can detect.
func findEndpointConfig(ref string) (*EndpointConfig, error) {
	var configs []EndpointConfig
	if err := viper.UnmarshalKey("endpoints", &configs); err != nil {
		return nil, fmt.Errorf("failed to parse endpoints config: %w", err)
	}
	for i := range configs {
		if configs[i].Name == ref {
			return &configs[i], nil
		}
	}
	if strings.Contains(ref, "://") {
		return &EndpointConfig{Name: ref, DSN: ref}, nil
	}
	return nil, fmt.Errorf("endpoint %q not found in config (and not a URL-style DSN)", ref)
}

// openConn builds one side of a comparison: resolves the endpoint
// entry, detects the engine, opens the database handle and fills in the
// dialect. The returned close function must be deferred by the caller.
func openConn(ref, table string, side endpoint.Side) (*schema.Conn, func() error, error) {
	cfg, err := findEndpointConfig(ref)
	if err != nil {
		return nil, nil, err
	}
	if table == "" {
		return nil, nil, fmt.Errorf("a table name is required for the %s side", side)
	}

	driverName := cfg.Driver
	dsn := cfg.DSN
	if strings.Contains(cfg.DSN, "://") {
		u, err := dburl.Parse(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DSN for %s: %w", cfg.Name, err)
		}
		dsn = u.DSN
		if driverName == "" {
			driverName = u.Driver
		}
	}
	if driverName == "" {
		return nil, nil, fmt.Errorf("endpoint %q needs an explicit driver or a URL-style DSN", cfg.Name)
	}

	engine, err := endpoint.ParseEngine(driverName)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(sqlDriverName(engine), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", side, err)
	}

	ep := endpoint.Endpoint{
		Engine:   engine,
		Database: cfg.Database,
		Schema:   cfg.Schema,
		Table:    table,
		DSN:      cfg.DSN,
	}
	d := dialect.GetDialect(engine)
	if ep.Schema == "" {
		ep.Schema = d.DefaultSchema("")
	}
	if ep.Schema == "" && engine == endpoint.EngineMySQL {
		// MySQL schema == database; read it from the live session.
		if err := db.QueryRow("SELECT DATABASE()").Scan(&ep.Schema); err != nil || ep.Schema == "" {
			db.Close()
			return nil, nil, fmt.Errorf("no database selected in %s DSN; set schema in config", side)
		}
		ep.Database = ep.Schema
	}

	conn := &schema.Conn{DB: db, Dialect: d, Endpoint: ep, Side: side}
	return conn, db.Close, nil
}

// sqlDriverName maps the engine to the registered database/sql driver.
func sqlDriverName(engine endpoint.Engine) string {
	switch engine {
	case endpoint.EnginePostgres:
		return "postgres"
	case endpoint.EngineSQLServer:
		return "sqlserver"
	case endpoint.EngineOracle:
		return "oracle"
	default:
		return "mysql"
	}
}
