package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/audit"
	"github.com/condomx/billing-core/store/memtest"
)

func TestAppendAndQueryByAction(t *testing.T) {
	s := memtest.New(10)
	sink := audit.NewStoreSink(s)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, audit.Entry{
		ID: "e1", At: "2026-01-05T12:00:00Z", ActorID: "system",
		Action: audit.ActionBillGenerated, ClientID: "acme",
	}))
	require.NoError(t, sink.Append(ctx, audit.Entry{
		ID: "e2", At: "2026-01-06T12:00:00Z", ActorID: "admin",
		Action: audit.ActionPaymentApplied, ClientID: "acme",
	}))

	entries, err := sink.Query(ctx, "acme", audit.Filter{Actions: []audit.Action{audit.ActionPaymentApplied}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e2", entries[0].ID)
}

func TestQueryScopedToClient(t *testing.T) {
	s := memtest.New(10)
	sink := audit.NewStoreSink(s)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, audit.Entry{ID: "e1", At: "2026-01-05T12:00:00Z", Action: audit.ActionBillGenerated, ClientID: "acme"}))
	require.NoError(t, sink.Append(ctx, audit.Entry{ID: "e2", At: "2026-01-05T12:00:00Z", Action: audit.ActionBillGenerated, ClientID: "other"}))

	entries, err := sink.Query(ctx, "acme", audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ID)
}

func TestAppendRequiresClientAndID(t *testing.T) {
	s := memtest.New(10)
	sink := audit.NewStoreSink(s)
	ctx := context.Background()

	assert.Error(t, sink.Append(ctx, audit.Entry{ID: "e1", Action: audit.ActionBillGenerated}))
	assert.Error(t, sink.Append(ctx, audit.Entry{ClientID: "acme", Action: audit.ActionBillGenerated}))
}
