package dialect

import "db-recon/internal/endpoint"

// Factory returns the appropriate Dialect implementation for an engine.
func GetDialect(engine endpoint.Engine) Dialect {
	switch engine {
	case endpoint.EnginePostgres:
		return &PostgresDialect{}
	case endpoint.EngineSQLServer:
		return &MSSQLDialect{}
	case endpoint.EngineOracle:
		return &OracleDialect{}
	default: // mysql
		return &MysqlDialect{}
	}
}

// Ensure interface implementation
var _ Dialect = (*MysqlDialect)(nil)
var _ Dialect = (*PostgresDialect)(nil)
var _ Dialect = (*MSSQLDialect)(nil)
var _ Dialect = (*OracleDialect)(nil)
