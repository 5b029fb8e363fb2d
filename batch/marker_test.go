package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeSet struct {
	members map[string]bool
	err     error
}

func (f *fakeSet) SAdd(ctx context.Context, _ string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	for _, m := range members {
		f.members[m.(string)] = true
	}
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (f *fakeSet) SIsMember(ctx context.Context, _ string, member interface{}) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(f.members[member.(string)])
	return cmd
}

func TestMarker(t *testing.T) {
	ctx := context.Background()
	m, err := NewMarker(&fakeSet{members: map[string]bool{}}, "hnenricher:reconciled")
	require.NoError(t, err)

	const key = "batch/output/job-1/input-1700000000.jsonl.out"
	done, err := m.IsReconciled(ctx, key)
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, m.MarkReconciled(ctx, key))
	done, err = m.IsReconciled(ctx, key)
	require.NoError(t, err)
	require.True(t, done)
}

func TestMarker_Errors(t *testing.T) {
	_, err := NewMarker(nil, "k")
	require.Error(t, err)

	m, err := NewMarker(&fakeSet{err: errors.New("down")}, "k")
	require.NoError(t, err)
	_, err = m.IsReconciled(context.Background(), "a")
	require.ErrorContains(t, err, "sismember")
	require.ErrorContains(t, m.MarkReconciled(context.Background(), "a"), "sadd")
}
