package endpoint

import (
	"fmt"
	"strings"
)

// Engine identifies a supported relational backend.
type Engine string

const (
	EngineMySQL     Engine = "mysql"
	EnginePostgres  Engine = "postgres"
	EngineSQLServer Engine = "sqlserver"
	EngineOracle    Engine = "oracle"
)

// ParseEngine maps a driver/engine name (including common aliases) to an Engine.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return EngineMySQL, nil
	case "postgres", "postgresql", "pgx", "pq":
		return EnginePostgres, nil
	case "sqlserver", "mssql":
		return EngineSQLServer, nil
	case "oracle", "ora", "godror":
		return EngineOracle, nil
	default:
		return "", fmt.Errorf("unsupported engine %q (supported: mysql, postgres, sqlserver, oracle)", s)
	}
}

// Side tells which half of a compare/migrate call an endpoint plays.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// Endpoint is a fully-qualified reference to one table in one store.
// Constructed per request, never persisted as-is (the DSN is excluded
// from JSON output so credentials don't leak into results or logs).
type Endpoint struct {
	Engine   Engine `json:"engine"`
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Table    string `json:"table"`
	DSN      string `json:"-"`
}

// Describe renders a compact identifier for error messages and logs.
func (e Endpoint) Describe() string {
	parts := make([]string, 0, 3)
	if e.Database != "" {
		parts = append(parts, e.Database)
	}
	if e.Schema != "" {
		parts = append(parts, e.Schema)
	}
	parts = append(parts, e.Table)
	return fmt.Sprintf("%s://%s", e.Engine, strings.Join(parts, "."))
}
