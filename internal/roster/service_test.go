package roster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labtrack/internal/store"
)

func TestRosterCRUD(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	st, err := svc.Create(ctx, "12345678", "Alex Rivera", "arivera@example.edu")
	require.NoError(t, err)
	assert.False(t, st.CreatedAt.IsZero())

	_, err = svc.Create(ctx, "12345678", "Someone Else", "")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.Create(ctx, "", "No UFID", "")
	assert.ErrorIs(t, err, ErrInvalid)

	got, err := svc.Get(ctx, "12345678")
	require.NoError(t, err)
	assert.Equal(t, "Alex Rivera", got.Name)

	updated, err := svc.Update(ctx, "12345678", "", "alex@example.edu")
	require.NoError(t, err)
	assert.Equal(t, "Alex Rivera", updated.Name)
	assert.Equal(t, "alex@example.edu", updated.Email)

	require.NoError(t, svc.Delete(ctx, "12345678"))
	_, err = svc.Get(ctx, "12345678")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "12345678"), ErrNotFound)
}

func TestRosterListSearch(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	_, err := svc.Create(ctx, "11112222", "Alex Rivera", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "33334444", "Dana Liu", "")
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "11112222", all[0].UFID)

	hits, err := svc.List(ctx, "liu")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Dana Liu", hits[0].Name)

	hits, err = svc.List(ctx, "1111")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Alex Rivera", hits[0].Name)
}
