package register_test

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/register"
)

func TestTryDebit(t *testing.T) {
	r, err := register.New("r1", decimal.NewFromInt(5))
	require.NoError(t, err)

	require.ErrorIs(t, r.TryDebit(decimal.RequireFromString("5.6")), register.ErrInsufficientChange)
	require.True(t, r.Funds().Equal(decimal.NewFromInt(5)), "failed debit must not change funds")

	require.NoError(t, r.TryDebit(decimal.NewFromInt(2)))
	require.True(t, r.Funds().Equal(decimal.NewFromInt(3)))
	require.ErrorIs(t, r.TryDebit(decimal.NewFromInt(-1)), register.ErrInvalidAmount)
}

func TestDebitUpToDrivesToZero(t *testing.T) {
	r, err := register.New("r1", decimal.NewFromInt(2))
	require.NoError(t, err)

	paid := r.DebitUpTo(decimal.RequireFromString("5.6"))
	require.True(t, paid.Equal(decimal.NewFromInt(2)))
	require.True(t, r.Funds().IsZero())
	require.True(t, r.DebitUpTo(decimal.NewFromInt(1)).IsZero())
}

func TestCredit(t *testing.T) {
	r, err := register.New("r1", decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, r.Credit(decimal.RequireFromString("4.4")))
	require.ErrorIs(t, r.Credit(decimal.NewFromInt(-1)), register.ErrInvalidAmount)
	require.True(t, r.Funds().Equal(decimal.RequireFromString("4.4")))

	_, err = register.New("r2", decimal.NewFromInt(-1))
	require.ErrorIs(t, err, register.ErrInvalidAmount)
}

func TestConcurrentDebitsNeverNegative(t *testing.T) {
	r, err := register.New("r1", decimal.NewFromInt(10))
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.TryDebit(decimal.NewFromInt(1))
			r.DebitUpTo(decimal.NewFromInt(1))
		}()
	}
	wg.Wait()
	require.True(t, r.Funds().IsZero())
}
