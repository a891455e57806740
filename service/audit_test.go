package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditRecordsAreChained(t *testing.T) {
	env := newTestEnv(t)

	env.audit.Record("chair", "FIRST", "resource-1", nil)
	env.audit.Record("chair", "SECOND", "resource-2", map[string]string{"k": "v"})
	env.audit.Record("clerk", "THIRD", "resource-3", nil)

	records, err := env.audit.List(0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Empty(t, records[0].PrevHash)
	require.Equal(t, records[0].Hash, records[1].PrevHash)
	require.Equal(t, records[1].Hash, records[2].PrevHash)

	broken, err := env.audit.VerifyChain()
	require.NoError(t, err)
	require.Equal(t, -1, broken)
}

func TestAuditChainDetectsTampering(t *testing.T) {
	env := newTestEnv(t)

	env.audit.Record("chair", "FIRST", "resource-1", nil)
	env.audit.Record("chair", "SECOND", "resource-2", nil)

	records, err := env.audit.List(0)
	require.NoError(t, err)

	// Recomputing the hash over altered fields must not match.
	tampered := records[1]
	tampered.Action = "FORGED"
	require.NotEqual(t, tampered.Hash, chainHash(&tampered))
}

func TestAuditListLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		env.audit.Record("chair", "EVENT", "resource", nil)
	}

	records, err := env.audit.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
