package ems

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwapSlicesEvenSplit(t *testing.T) {
	amounts, interval, err := twapSlices(30, 1, 0.001, 60*time.Second, 10*time.Second, false)
	require.NoError(t, err)
	require.Len(t, amounts, 6)
	for _, a := range amounts {
		assert.InDelta(t, 5.0, a, 1e-9)
	}
	assert.Equal(t, 10*time.Second, interval)
}

func TestTwapSlicesSmallRemainderFoldsIntoLast(t *testing.T) {
	// base=5, остаток 0.5 < min — вливается в последний слайс
	amounts, interval, err := twapSlices(30.5, 1, 0.001, 60*time.Second, 10*time.Second, false)
	require.NoError(t, err)
	require.Len(t, amounts, 6)
	assert.InDelta(t, 5.5, amounts[5], 1e-9)
	assert.Equal(t, 10*time.Second, interval)
}

func TestTwapSlicesLargeRemainderBecomesExtraSlice(t *testing.T) {
	amounts, interval, err := twapSlices(32, 1, 1, 60*time.Second, 10*time.Second, false)
	require.NoError(t, err)
	require.Len(t, amounts, 7)
	assert.InDelta(t, 2.0, amounts[6], 1e-9)
	// интервал пересчитан, общее время сохранено
	assert.Equal(t, 60*time.Second/7, interval)
}

func TestTwapSlicesSumEqualsTotal(t *testing.T) {
	cases := []struct {
		total, min, step float64
		duration, wait   time.Duration
	}{
		{30, 1, 0.001, 60 * time.Second, 10 * time.Second},
		{17.3, 0.5, 0.1, 45 * time.Second, 7 * time.Second},
		{100, 3, 1, 120 * time.Second, 11 * time.Second},
		{2.5, 2, 0.001, 30 * time.Second, 30 * time.Second},
	}
	for _, c := range cases {
		amounts, _, err := twapSlices(c.total, c.min, c.step, c.duration, c.wait, false)
		require.NoError(t, err)
		sum := 0.0
		for i, a := range amounts {
			sum += a
			assert.GreaterOrEqualf(t, a+1e-9, c.min, "slice %d of %+v below min", i, c)
		}
		assert.InDeltaf(t, c.total, sum, 1e-9, "case %+v", c)
	}
}

func TestTwapSlicesBelowMinimum(t *testing.T) {
	// не reduce-only — исполнять нечего
	amounts, _, err := twapSlices(0.5, 1, 0.001, 60*time.Second, 10*time.Second, false)
	require.NoError(t, err)
	assert.Empty(t, amounts)

	// reduce-only — один кусок без ожидания
	amounts, interval, err := twapSlices(0.5, 1, 0.001, 60*time.Second, 10*time.Second, true)
	require.NoError(t, err)
	require.Len(t, amounts, 1)
	assert.InDelta(t, 0.5, amounts[0], 1e-9)
	assert.Equal(t, time.Duration(0), interval)
}

func TestTwapSlicesRejectsBadParams(t *testing.T) {
	_, _, err := twapSlices(0, 1, 0.001, 60*time.Second, 10*time.Second, false)
	assert.ErrorIs(t, err, ErrBadAlgoParams)

	_, _, err = twapSlices(30, 1, 0.001, 10*time.Second, 60*time.Second, false)
	assert.ErrorIs(t, err, ErrBadAlgoParams)

	_, _, err = twapSlices(30, 1, 0.001, 0, 0, false)
	assert.ErrorIs(t, err, ErrBadAlgoParams)
}
