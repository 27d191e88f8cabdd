package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeList mimics LPUSH/RPOP on a single list.
type fakeList struct {
	values []string // index 0 is the head
	err    error
}

func (f *fakeList) LPush(_ context.Context, _ string, values ...any) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	for _, v := range values {
		var s string
		switch t := v.(type) {
		case []byte:
			s = string(t)
		case string:
			s = t
		}
		f.values = append([]string{s}, f.values...)
	}
	return goredis.NewIntResult(int64(len(f.values)), nil)
}

func (f *fakeList) RPop(context.Context, string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	if len(f.values) == 0 {
		return goredis.NewStringResult("", goredis.Nil)
	}
	last := f.values[len(f.values)-1]
	f.values = f.values[:len(f.values)-1]
	return goredis.NewStringResult(last, nil)
}

func (f *fakeList) LLen(context.Context, string) *goredis.IntCmd {
	return goredis.NewIntResult(int64(len(f.values)), f.err)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testFeed(list *fakeList) *Feed {
	f := newFeed(list, "aura:feed", slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.now = func() time.Time { return fixedNow }
	return f
}

func TestFeed_FIFO(t *testing.T) {
	list := &fakeList{}
	f := testFeed(list)
	ctx := context.Background()

	require.NoError(t, f.Enqueue(ctx, domain.Item{Text: "first", Source: "Manual"}))
	require.NoError(t, f.Enqueue(ctx, domain.Item{Text: "second"}))
	n, err := f.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	item, ok, err := f.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Item{Text: "first", Source: "Manual", ReceivedAt: fixedNow}, item)

	item, ok, err = f.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", item.Text)
	assert.Equal(t, "Redis (aura:feed)", item.Source)

	_, ok, err = f.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeed_PlainTextPayload(t *testing.T) {
	list := &fakeList{values: []string{"  Flooding on Main St  "}}
	item, ok, err := testFeed(list).Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Flooding on Main St", item.Text)
}

func TestFeed_Errors(t *testing.T) {
	list := &fakeList{err: errors.New("connection refused")}
	f := testFeed(list)

	_, ok, err := f.Next(context.Background())
	assert.False(t, ok)
	require.Error(t, err)

	err = f.Enqueue(context.Background(), domain.Item{Text: "x"})
	require.Error(t, err)

	assert.Error(t, testFeed(&fakeList{}).Enqueue(context.Background(), domain.Item{Text: " "}))
}

func TestFeed_SkipsEmptyJSONReport(t *testing.T) {
	list := &fakeList{values: []string{`{"text":"  ","source":"Twitter"}`}}
	_, ok, err := testFeed(list).Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, list.values)
}
