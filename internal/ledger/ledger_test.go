package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxHandsClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want int
	}{
		{0, DefaultMaxHands},
		{5, MinMaxHands},
		{-3, MinMaxHands},
		{500, 500},
		{50000, MaxMaxHands},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.in).MaxHands(), "input %d", tt.in)
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	t.Parallel()

	l := New(10)
	for i := 1; i <= 15; i++ {
		l.Append(blackjack.Dollars(int64(100 + i)))
	}

	entries := l.Entries()
	require.Len(t, entries, 10)
	assert.Equal(t, 6, entries[0].Index)
	assert.Equal(t, 15, entries[9].Index)
	assert.Equal(t, 15, l.HandCounter())

	b, ok := l.Bankroll()
	require.True(t, ok)
	assert.Equal(t, blackjack.Dollars(115), b)

	l.SetMaxHands(MinMaxHands)
	assert.Len(t, l.Entries(), 10)
}

func TestSeries(t *testing.T) {
	t.Parallel()

	l := New(0)
	l.Append(blackjack.Dollars(525))
	l.Append(blackjack.Dollars(500))

	s := l.Series()
	assert.Equal(t, []int{1, 2}, s.X)
	assert.Equal(t, []blackjack.Money{blackjack.Dollars(525), blackjack.Dollars(500)}, s.Y)
	assert.Equal(t, DefaultMaxHands, s.MaxHands)
}

func TestExportShape(t *testing.T) {
	t.Parallel()

	l := New(0)
	l.Append(blackjack.FromFloat(512.50))

	data, err := json.Marshal(l.Export(time.UnixMilli(1700000000000)))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"schemaVersion": 1,
		"savedAt": 1700000000000,
		"bankroll": 512.5,
		"handCounter": 1,
		"ledger": [{"index": 1, "bankrollAfter": 512.5}]
	}`, string(data))

	empty, err := json.Marshal(New(0).Export(time.UnixMilli(0)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"schemaVersion":1,"savedAt":0,"bankroll":null,"handCounter":0,"ledger":[]}`, string(empty))
}

func TestRestore(t *testing.T) {
	t.Parallel()

	bankroll := blackjack.Dollars(440)
	l := New(10)
	err := l.Restore(Save{
		SchemaVersion: SchemaVersion,
		Bankroll:      &bankroll,
		HandCounter:   3,
		Ledger: []Entry{
			{Index: 9, BankrollAfter: blackjack.Dollars(440)},
			{Index: 0, BankrollAfter: blackjack.Dollars(1)},
			{Index: 7, BankrollAfter: blackjack.Dollars(460)},
		},
	})
	require.NoError(t, err)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 7, entries[0].Index)
	assert.Equal(t, 9, entries[1].Index)
	assert.Equal(t, 9, l.HandCounter(), "counter realigns to the last index")

	next := l.Append(blackjack.Dollars(465))
	assert.Equal(t, 10, next.Index)
}

func TestRestoreRejectsOtherSchemas(t *testing.T) {
	t.Parallel()

	l := New(0)
	l.Append(blackjack.Dollars(1))

	err := l.Restore(Save{SchemaVersion: 2, HandCounter: 40})
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
	assert.Empty(t, l.Entries())
	assert.Zero(t, l.HandCounter())
	_, ok := l.Bankroll()
	assert.False(t, ok)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewFileStore(filepath.Join(t.TempDir(), "blackjack", "ledger.json"))
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	l := New(0)
	l.Append(blackjack.Dollars(525))
	require.NoError(t, store.Save(ctx, l.Export(time.Now())))

	save, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, save.SchemaVersion)
	require.NotNil(t, save.Bankroll)
	assert.Equal(t, blackjack.Dollars(525), *save.Bankroll)
	assert.Len(t, save.Ledger, 1)

	require.NoError(t, store.Reset(ctx))
	require.NoError(t, store.Reset(ctx), "resetting twice is fine")
	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func newEngine(t *testing.T, stack string, opts ...game.Option) *game.Engine {
	t.Helper()
	opts = append([]game.Option{
		game.WithPacing(game.Pacing{}),
		game.WithStackedCards(blackjack.MustParseCards(stack)...),
	}, opts...)
	return game.New(randutil.New(9), game.NopAdapter(), opts...)
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	rec := NewRecorder(New(0), store, quartz.NewReal(), nil)

	e := newEngine(t, "Ts 9h Qd 8c")
	e.EventBus().Subscribe(rec)

	_, err := e.Dispatch(ctx, game.Action{Type: game.ActionStartRound})
	require.NoError(t, err)
	_, err = e.Dispatch(ctx, game.Action{Type: game.ActionStand})
	require.NoError(t, err)

	entries := rec.Ledger().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, blackjack.Dollars(525), entries[0].BankrollAfter)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- rec.Run(runCtx) }()
	cancel()
	require.NoError(t, <-done)

	save, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, save.HandCounter)

	// a fresh table picks the bankroll back up
	restored := NewRecorder(New(0), store, quartz.NewReal(), nil)
	e2 := newEngine(t, "")
	require.NoError(t, restored.Restore(ctx, e2))
	assert.Equal(t, blackjack.Dollars(525), e2.Snapshot().Bankroll)
	assert.Equal(t, 1, restored.Ledger().HandCounter())
}

func TestRecorderRestoreWithoutSave(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	rec := NewRecorder(New(0), store, quartz.NewReal(), nil)
	e := newEngine(t, "")

	require.NoError(t, rec.Restore(context.Background(), e))
	assert.Equal(t, blackjack.Dollars(500), e.Snapshot().Bankroll)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BLACKJACK_TEST_DSN")
	if dsn == "" {
		t.Skip("BLACKJACK_TEST_DSN not set")
	}
	ctx := context.Background()

	store, err := OpenPostgres(ctx, dsn, "test-"+time.Now().Format("150405.000000"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))
	defer store.Reset(ctx)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	l := New(0)
	l.Append(blackjack.Dollars(480))
	l.Append(blackjack.Dollars(505))
	require.NoError(t, store.Save(ctx, l.Export(time.Now())))
	l.Append(blackjack.Dollars(530))
	require.NoError(t, store.Save(ctx, l.Export(time.Now())))

	save, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, save.Ledger, 3)
	assert.Equal(t, blackjack.Dollars(530), save.Ledger[2].BankrollAfter)
	require.NotNil(t, save.Bankroll)
	assert.Equal(t, 3, save.HandCounter)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	l := New(0)
	l.Append(blackjack.Dollars(510))
	require.NoError(t, store.Save(ctx, l.Export(time.Now())))

	save, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, save.Ledger, 1)
	save.Ledger[0].BankrollAfter = 0

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, blackjack.Dollars(510), again.Ledger[0].BankrollAfter, "loads are copies")

	require.NoError(t, store.Reset(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
