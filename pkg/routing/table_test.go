package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func freshTable() *Table {
	return &Table{
		Database:   "neo4j",
		Routers:    []string{"r1:7687"},
		Readers:    []string{"r1:7687", "r2:7687"},
		Writers:    []string{"r1:7687"},
		TTL:        5 * time.Second,
		Expiration: time.Now().Add(5 * time.Second),
	}
}

func TestIsStaleForExpiredTable(t *testing.T) {
	tbl := freshTable()
	tbl.Expiration = time.Now().Add(-time.Second)
	assert.True(t, tbl.IsStaleFor(ModeRead))
}

func TestIsStaleForEmptyRouters(t *testing.T) {
	tbl := freshTable()
	tbl.Routers = nil
	assert.True(t, tbl.IsStaleFor(ModeRead))
}

func TestIsStaleForWriteModeWithNoWriters(t *testing.T) {
	tbl := freshTable()
	tbl.Writers = nil
	assert.True(t, tbl.IsStaleFor(ModeWrite))
	assert.False(t, tbl.IsStaleFor(ModeRead))
}

func TestForgetRemovesFromReadersAndWritersNotRouters(t *testing.T) {
	tbl := freshTable()
	tbl.Forget("r1:7687")
	assert.NotContains(t, tbl.Readers, "r1:7687")
	assert.NotContains(t, tbl.Writers, "r1:7687")
	assert.Contains(t, tbl.Routers, "r1:7687")
}

func TestForgetWriterOnlyTouchesWriters(t *testing.T) {
	tbl := freshTable()
	tbl.ForgetWriter("r1:7687")
	assert.NotContains(t, tbl.Writers, "r1:7687")
	assert.Contains(t, tbl.Readers, "r1:7687")
}

func TestExpirationFromTTLOverflowSaturates(t *testing.T) {
	now := time.Now()
	huge := time.Duration(1 << 62)
	exp := expirationFromTTL(now, huge)
	assert.True(t, exp.UnixNano() > 0)
}
