package typemap

import (
	"strings"

	"db-recon/internal/endpoint"
)

// Type is the canonical vocabulary columns are compared in. The set is
// closed: anything an engine reports that we don't recognize becomes
// TypeOther so an exotic column never blocks a schema comparison.
type Type string

const (
	TypeInteger  Type = "integer"
	TypeDecimal  Type = "decimal"
	TypeText     Type = "text"
	TypeDatetime Type = "datetime"
	TypeBoolean  Type = "boolean"
	TypeBinary   Type = "binary"
	TypeOther    Type = "other"
)

var mysqlTypes = map[string]Type{
	"tinyint": TypeInteger, "smallint": TypeInteger, "mediumint": TypeInteger,
	"int": TypeInteger, "integer": TypeInteger, "bigint": TypeInteger,
	"serial": TypeInteger, "year": TypeInteger,
	"decimal": TypeDecimal, "numeric": TypeDecimal, "float": TypeDecimal,
	"double": TypeDecimal, "double precision": TypeDecimal, "real": TypeDecimal,
	"char": TypeText, "varchar": TypeText, "tinytext": TypeText, "text": TypeText,
	"mediumtext": TypeText, "longtext": TypeText, "enum": TypeText, "set": TypeText,
	"date": TypeDatetime, "datetime": TypeDatetime, "timestamp": TypeDatetime, "time": TypeDatetime,
	"bool": TypeBoolean, "boolean": TypeBoolean, "bit": TypeBoolean,
	"binary": TypeBinary, "varbinary": TypeBinary, "tinyblob": TypeBinary,
	"blob": TypeBinary, "mediumblob": TypeBinary, "longblob": TypeBinary,
}

var postgresTypes = map[string]Type{
	"smallint": TypeInteger, "integer": TypeInteger, "bigint": TypeInteger,
	"int": TypeInteger, "int2": TypeInteger, "int4": TypeInteger, "int8": TypeInteger,
	"smallserial": TypeInteger, "serial": TypeInteger, "bigserial": TypeInteger,
	"numeric": TypeDecimal, "decimal": TypeDecimal, "real": TypeDecimal,
	"float4": TypeDecimal, "float8": TypeDecimal, "double precision": TypeDecimal,
	"money": TypeDecimal,
	"character": TypeText, "char": TypeText, "bpchar": TypeText,
	"character varying": TypeText, "varchar": TypeText, "text": TypeText,
	"citext": TypeText, "name": TypeText, "uuid": TypeText,
	"date": TypeDatetime, "time": TypeDatetime, "timetz": TypeDatetime,
	"timestamp": TypeDatetime, "timestamptz": TypeDatetime,
	"timestamp without time zone": TypeDatetime, "timestamp with time zone": TypeDatetime,
	"time without time zone": TypeDatetime, "time with time zone": TypeDatetime,
	"boolean": TypeBoolean, "bool": TypeBoolean,
	"bytea": TypeBinary,
}

var sqlserverTypes = map[string]Type{
	"tinyint": TypeInteger, "smallint": TypeInteger, "int": TypeInteger, "bigint": TypeInteger,
	"decimal": TypeDecimal, "numeric": TypeDecimal, "money": TypeDecimal,
	"smallmoney": TypeDecimal, "float": TypeDecimal, "real": TypeDecimal,
	"char": TypeText, "varchar": TypeText, "nchar": TypeText, "nvarchar": TypeText,
	"text": TypeText, "ntext": TypeText, "uniqueidentifier": TypeText, "xml": TypeText,
	"date": TypeDatetime, "datetime": TypeDatetime, "datetime2": TypeDatetime,
	"smalldatetime": TypeDatetime, "datetimeoffset": TypeDatetime, "time": TypeDatetime,
	"bit": TypeBoolean,
	"binary": TypeBinary, "varbinary": TypeBinary, "image": TypeBinary,
	"rowversion": TypeBinary, "timestamp": TypeBinary,
}

var oracleTypes = map[string]Type{
	"integer": TypeInteger, "int": TypeInteger, "smallint": TypeInteger,
	"pls_integer": TypeInteger, "binary_integer": TypeInteger,
	// Bare NUMBER is decimal unless the introspector already resolved its
	// scale to INTEGER/DECIMAL (the USER_TAB_COLUMNS query does that).
	"number": TypeDecimal, "decimal": TypeDecimal, "numeric": TypeDecimal,
	"float": TypeDecimal, "binary_float": TypeDecimal, "binary_double": TypeDecimal,
	"char": TypeText, "nchar": TypeText, "varchar": TypeText, "varchar2": TypeText,
	"nvarchar2": TypeText, "clob": TypeText, "nclob": TypeText, "long": TypeText,
	"rowid": TypeText, "urowid": TypeText,
	"date": TypeDatetime, "timestamp": TypeDatetime,
	"timestamp with time zone": TypeDatetime, "timestamp with local time zone": TypeDatetime,
	"boolean": TypeBoolean,
	"blob":    TypeBinary, "raw": TypeBinary, "long raw": TypeBinary, "bfile": TypeBinary,
}

func tableFor(engine endpoint.Engine) map[string]Type {
	switch engine {
	case endpoint.EngineMySQL:
		return mysqlTypes
	case endpoint.EnginePostgres:
		return postgresTypes
	case endpoint.EngineSQLServer:
		return sqlserverTypes
	case endpoint.EngineOracle:
		return oracleTypes
	default:
		return nil
	}
}

// Normalize maps an engine's native column type name to the canonical
// vocabulary. Pure and total: it never fails, unknown inputs map to
// TypeOther. Length/precision suffixes and unsigned qualifiers are
// stripped, matching is case-insensitive.
func Normalize(engine endpoint.Engine, nativeType string) Type {
	name := clean(nativeType)
	if name == "" {
		return TypeOther
	}
	if t, ok := tableFor(engine)[name]; ok {
		return t
	}
	return fallback(name)
}

// clean strips "(n)", "(p,s)" suffixes and trailing qualifiers such as
// "unsigned"/"zerofill" so "varchar(255)" and "int unsigned" hit the maps.
func clean(nativeType string) string {
	s := strings.ToLower(strings.TrimSpace(nativeType))
	if i := strings.IndexByte(s, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(s[i:], ')'); j >= 0 {
			rest = s[i+j+1:]
		}
		s = strings.TrimSpace(s[:i]) + rest
	}
	s = strings.TrimSuffix(s, " zerofill")
	s = strings.TrimSuffix(s, " unsigned")
	return strings.Join(strings.Fields(s), " ")
}

// fallback classifies by family keywords when the exact name is not in
// an engine table. Keeps normalization total across vendor aliases.
func fallback(name string) Type {
	switch {
	case strings.Contains(name, "bool"):
		return TypeBoolean
	case strings.Contains(name, "int"):
		return TypeInteger
	// Text before the loose "dec"/"num" substrings: names like
	// "widechar" contain "dec" and must not classify as decimal.
	case strings.Contains(name, "char"), strings.Contains(name, "text"),
		strings.Contains(name, "clob"):
		return TypeText
	case strings.Contains(name, "dec"), strings.Contains(name, "num"),
		strings.Contains(name, "float"), strings.Contains(name, "double"),
		strings.Contains(name, "real"):
		return TypeDecimal
	case strings.Contains(name, "date"), strings.Contains(name, "time"):
		return TypeDatetime
	case strings.Contains(name, "blob"), strings.Contains(name, "binary"),
		strings.Contains(name, "bytea"):
		return TypeBinary
	default:
		return TypeOther
	}
}

// Orderable reports whether a canonical type can serve as a diff key.
// Key-range comparison needs exact integer ordering.
func Orderable(t Type) bool {
	return t == TypeInteger
}
