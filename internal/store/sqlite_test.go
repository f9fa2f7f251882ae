package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfactor/enrich-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedClients(t *testing.T, st *SQLiteStore, ownerID int64, seeds []ClientSeed) {
	t.Helper()
	n, err := st.InsertClients(context.Background(), ownerID, seeds)
	require.NoError(t, err)
	require.Equal(t, len(seeds), n)
}

func TestSQLite_InsertAndWorklist(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	name := "Maria Silva"
	phone := "1134567890 ✅"
	seedClients(t, st, 7, []ClientSeed{
		{CPF: "12345678901"},
		{CPF: "98765432100", Name: &name, Phone: &phone},
	})

	got, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "12345678901", got[0].CPF)
	assert.False(t, got[0].Checked)
	assert.Nil(t, got[0].Phone)
	require.NotNil(t, got[1].Name)
	assert.Equal(t, "Maria Silva", *got[1].Name)
}

func TestSQLite_InsertSkipsDuplicateCPF(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedClients(t, st, 7, []ClientSeed{{CPF: "12345678901"}})

	n, err := st.InsertClients(ctx, 7, []ClientSeed{{CPF: "12345678901"}, {CPF: "22233344455"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_WorklistPhonePredicates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	phone := "1134567890 ✅"
	seedClients(t, st, 7, []ClientSeed{
		{CPF: "11111111111"},
		{CPF: "22222222222", Phone: &phone},
	})

	missing, err := st.Worklist(ctx, Filter{OwnerID: 7, Phone: PhoneMissing})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "11111111111", missing[0].CPF)

	present, err := st.Worklist(ctx, Filter{OwnerID: 7, Phone: PhonePresent})
	require.NoError(t, err)
	require.Len(t, present, 1)
	assert.Equal(t, "22222222222", present[0].CPF)
}

func TestSQLite_WorklistCheckedFilterAndLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedClients(t, st, 7, []ClientSeed{
		{CPF: "11111111111"},
		{CPF: "22222222222"},
		{CPF: "33333333333"},
	})

	all, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, st.UpdateClient(ctx, all[0].ID, model.RecordUpdate{Checked: true}))

	unchecked := false
	got, err := st.Worklist(ctx, Filter{OwnerID: 7, Checked: &unchecked, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "22222222222", got[0].CPF)
}

func TestSQLite_WorklistScopedByOwner(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedClients(t, st, 7, []ClientSeed{{CPF: "11111111111"}})
	seedClients(t, st, 8, []ClientSeed{{CPF: "22222222222"}})

	got, err := st.Worklist(ctx, Filter{OwnerID: 8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "22222222222", got[0].CPF)
}

func TestSQLite_UpdateClientPartialFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedClients(t, st, 7, []ClientSeed{{CPF: "12345678901"}})
	recs, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)

	name := "Maria Silva"
	birth := "1980-03-25"
	income := decimal.RequireFromString("2350.75")
	score := 612
	phone := "11987654321 ✅"
	err = st.UpdateClient(ctx, recs[0].ID, model.RecordUpdate{
		Name:      &name,
		BirthDate: &birth,
		Income:    &income,
		Score:     &score,
		Phone:     &phone,
		Checked:   true,
	})
	require.NoError(t, err)

	got, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Maria Silva", *got[0].Name)
	assert.Equal(t, "1980-03-25", *got[0].BirthDate)
	assert.Equal(t, "2350.75", got[0].Income.String())
	assert.Equal(t, 612, *got[0].Score)
	assert.Equal(t, "11987654321 ✅", *got[0].Phone)
	assert.True(t, got[0].Checked)

	// A later update with only Checked must not clear the other fields.
	require.NoError(t, st.UpdateClient(ctx, recs[0].ID, model.RecordUpdate{Checked: true}))
	got, err = st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", *got[0].Name)
}

func TestSQLite_UpdateClientNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateClient(context.Background(), 999, model.RecordUpdate{Checked: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_DeleteClient(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedClients(t, st, 7, []ClientSeed{{CPF: "12345678901"}})
	recs, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)

	require.NoError(t, st.DeleteClient(ctx, recs[0].ID))

	got, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, st.DeleteClient(ctx, recs[0].ID), ErrNotFound)
}

func TestSQLite_ResetChecked(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedClients(t, st, 7, []ClientSeed{{CPF: "11111111111"}, {CPF: "22222222222"}})
	recs, err := st.Worklist(ctx, Filter{OwnerID: 7})
	require.NoError(t, err)
	require.NoError(t, st.UpdateClient(ctx, recs[0].ID, model.RecordUpdate{Checked: true}))

	n, err := st.ResetChecked(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	checked := true
	got, err := st.Worklist(ctx, Filter{OwnerID: 7, Checked: &checked})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	outcome := &model.BatchOutcome{Attempted: 5, Succeeded: 3, Failed: 1, Excluded: 1}
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, outcome))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Outcome)
	assert.Equal(t, 5, runs[0].Outcome.Attempted)
	assert.Equal(t, 1, runs[0].Outcome.Excluded)
}

func TestSQLite_RunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "missing", model.RunStatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)
}
