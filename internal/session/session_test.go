package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(role domain.Role, text string, cats ...domain.Category) domain.ConversationTurn {
	return domain.ConversationTurn{Role: role, Text: text, ReferencedCategories: cats}
}

func TestVisibleTo(t *testing.T) {
	turns := []domain.ConversationTurn{
		turn(domain.RoleUser, "how much did I spend?", domain.CategoryTransactions),
		turn(domain.RoleAssistant, "You spent 1200.", domain.CategoryTransactions),
		turn(domain.RoleUser, "and my debts?", domain.CategoryLiabilities),
		turn(domain.RoleAssistant, "You owe 5000.", domain.CategoryLiabilities, domain.CategoryTransactions),
		turn(domain.RoleUser, "hello"),
	}

	got := VisibleTo(turns, domain.NewCategorySet(domain.CategoryTransactions))
	require.Len(t, got, 3)
	assert.Equal(t, "how much did I spend?", got[0].Text)
	assert.Equal(t, "You spent 1200.", got[1].Text)
	assert.Equal(t, "hello", got[2].Text)

	assert.Len(t, VisibleTo(turns, domain.NewCategorySet()), 1)
	assert.Len(t, VisibleTo(turns, domain.NewCategorySet(domain.AllCategories()...)), 5)
	assert.Empty(t, VisibleTo(nil, domain.NewCategorySet()))
}

func TestMemoryStore_Window(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendTurn(ctx, "s1", turn(domain.RoleUser, fmt.Sprintf("q%d", i))))
	}

	got, err := s.RecentHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "q2", got[0].Text)
	assert.Equal(t, "q4", got[2].Text)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.False(t, got[0].Timestamp.IsZero())

	other, err := s.RecentHistory(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5, 0)
	cats := []domain.Category{domain.CategoryAssets}
	require.NoError(t, s.AppendTurn(ctx, "s1", turn(domain.RoleAssistant, "a", cats...)))
	cats[0] = domain.CategoryLiabilities

	got, err := s.RecentHistory(ctx, "s1")
	require.NoError(t, err)
	got[0].Text = "mutated"

	again, err := s.RecentHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Text)
	assert.Equal(t, []domain.Category{domain.CategoryAssets}, again[0].ReferencedCategories)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5, time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.AppendTurn(ctx, "s1", turn(domain.RoleUser, "q")))

	now = now.Add(30 * time.Minute)
	got, err := s.RecentHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	now = now.Add(2 * time.Hour)
	got, err = s.RecentHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_Errors(t *testing.T) {
	s := NewMemoryStore(0, 0)
	assert.ErrorIs(t, s.AppendTurn(context.Background(), "", turn(domain.RoleUser, "q")), ErrEmptySessionID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.AppendTurn(ctx, "s1", turn(domain.RoleUser, "q")), context.Canceled)
	_, err := s.RecentHistory(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", id)
			for j := 0; j < 20; j++ {
				_ = s.AppendTurn(ctx, sid, turn(domain.RoleUser, fmt.Sprintf("%d", j)))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		got, err := s.RecentHistory(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		require.Len(t, got, 20)
		for j, tr := range got {
			assert.Equal(t, fmt.Sprintf("%d", j), tr.Text, "turns must stay in append order")
		}
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("INSIGHTS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INSIGHTS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, addr)
	require.NoError(t, err)
	defer rdb.Close()

	s := NewRedisStore(rdb, 2, time.Minute)
	sid := "test-" + uuid.NewString()
	defer rdb.Del(ctx, sessionKey(sid))

	require.NoError(t, s.AppendTurn(ctx, sid, turn(domain.RoleUser, "one")))
	require.NoError(t, s.AppendTurn(ctx, sid, turn(domain.RoleAssistant, "two", domain.CategoryIncome)))
	require.NoError(t, s.AppendTurn(ctx, sid, turn(domain.RoleUser, "three")))

	got, err := s.RecentHistory(ctx, sid)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Text)
	assert.Equal(t, []domain.Category{domain.CategoryIncome}, got[0].ReferencedCategories)
	assert.Equal(t, "three", got[1].Text)
}
