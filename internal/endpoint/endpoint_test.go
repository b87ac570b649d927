package endpoint

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngine(t *testing.T) {
	cases := map[string]Engine{
		"mysql":      EngineMySQL,
		"MariaDB":    EngineMySQL,
		"postgres":   EnginePostgres,
		"postgresql": EnginePostgres,
		"pgx":        EnginePostgres,
		" pq ":       EnginePostgres,
		"sqlserver":  EngineSQLServer,
		"MSSQL":      EngineSQLServer,
		"oracle":     EngineOracle,
		"godror":     EngineOracle,
	}
	for in, want := range cases {
		got, err := ParseEngine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEngine("sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported engine")
}

func TestDescribe(t *testing.T) {
	e := Endpoint{Engine: EnginePostgres, Database: "shop", Schema: "public", Table: "orders"}
	assert.Equal(t, "postgres://shop.public.orders", e.Describe())

	e = Endpoint{Engine: EngineMySQL, Database: "shop", Table: "orders"}
	assert.Equal(t, "mysql://shop.orders", e.Describe())

	e = Endpoint{Engine: EngineOracle, Table: "ORDERS"}
	assert.Equal(t, "oracle://ORDERS", e.Describe())
}

// The DSN carries credentials and must never reach JSON output.
func TestEndpointJSONExcludesDSN(t *testing.T) {
	e := Endpoint{
		Engine: EngineMySQL,
		Table:  "orders",
		DSN:    "user:secret@tcp(localhost:3306)/shop",
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	connErr := &ConnectionError{
		Side:     SideSource,
		Endpoint: Endpoint{Engine: EngineMySQL, Database: "shop", Table: "orders"},
		Err:      cause,
	}
	assert.Contains(t, connErr.Error(), "source connection failed")
	assert.Contains(t, connErr.Error(), "mysql://shop.orders")
	assert.ErrorIs(t, connErr, cause)

	nf := &NotFoundError{Side: SideTarget, Kind: "table", Identifier: "postgres://shop.public.orders"}
	assert.Equal(t, `table "postgres://shop.public.orders" not found on target side`, nf.Error())

	keyErr := &InvalidKeyColumnError{Column: "name", Side: SideSource, Reason: "column does not exist"}
	assert.Contains(t, keyErr.Error(), `key column "name" unusable on source side`)
}
