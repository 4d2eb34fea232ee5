// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eval

import (
	"testing"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestHitRate(t *testing.T) {
	assert.Equal(t, 1.0, HitRate([]int64{1, 2, 3, 4, 5}, []int64{2, 5, 9}))
	assert.Equal(t, 0.0, HitRate([]int64{1, 2, 3}, []int64{4}))
	assert.Equal(t, 0.0, HitRate([]int64{}, []int64{4}))
	assert.Equal(t, 0.0, HitRateAtK([]int64{1, 2, 3}, []int64{3}, 2))
	assert.Equal(t, 1.0, HitRateAtK([]int64{1, 2, 3}, []int64{3}, 3))
	assert.Equal(t, 1.0, HitRateAtK([]string{"a", "b"}, []string{"b"}, 10))
}

func TestPrecision(t *testing.T) {
	precision, err := Precision([]int64{1, 2, 3, 4, 5}, []int64{2, 5, 9})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, precision, epsilon)

	_, err = Precision([]int64{}, []int64{1})
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	precision, err = PrecisionAtK([]int64{1, 2, 3, 4, 5}, []int64{2, 5, 9}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, precision, epsilon)

	_, err = PrecisionAtK([]int64{1, 2}, []int64{1}, 0)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestPrecisionDuplicates(t *testing.T) {
	// a bought item repeated in the list is counted once
	precision, err := Precision([]int64{1, 1, 2}, []int64{1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, precision, epsilon)
	precision, err = PrecisionAtK([]int64{7, 7, 7, 8}, []int64{7, 8}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, precision, epsilon)
}

func TestPrecisionAtKBeyondLength(t *testing.T) {
	recommended := []int64{4, 8, 15, 16}
	bought := []int64{8, 16, 23}
	expected, err := Precision(recommended, bought)
	require.NoError(t, err)
	for _, k := range []int{4, 5, 100} {
		precision, err := PrecisionAtK(recommended, bought, k)
		require.NoError(t, err)
		assert.Equal(t, expected, precision)
	}
}

func TestRecall(t *testing.T) {
	recall, err := Recall([]int64{1, 2, 3, 4, 5}, []int64{2, 5, 9})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, recall, epsilon)

	_, err = Recall([]int64{1}, []int64{})
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	recall, err = RecallAtK([]int64{1, 2, 3, 4, 5}, []int64{2, 5, 9}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, recall, epsilon)
}

func TestRecallMonotonic(t *testing.T) {
	bought := []int64{2, 5, 9, 11}
	recommended := []int64{9, 1, 2, 7, 5, 11}
	// growing recommended list
	last := 0.0
	for k := 0; k <= len(recommended); k++ {
		recall, err := RecallAtK(recommended, bought, k)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, recall, last)
		last = recall
	}
	// shrinking bought list by dropping items never recommended
	wider, err := Recall(recommended[:3], []int64{2, 9, 100, 200})
	require.NoError(t, err)
	narrower, err := Recall(recommended[:3], []int64{2, 9, 100})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, narrower, wider)
}

func TestMoneyPrecisionAtK(t *testing.T) {
	recommended := []int64{1, 2, 3, 4, 5}
	bought := []int64{2, 4}
	prices := []float64{10, 20, 30, 40, 50}
	precision, err := MoneyPrecisionAtK(recommended, bought, prices, 5)
	require.NoError(t, err)
	assert.InDelta(t, 60.0/150.0, precision, epsilon)

	precision, err = MoneyPrecisionAtK(recommended, bought, prices, 2)
	require.NoError(t, err)
	assert.InDelta(t, 20.0/30.0, precision, epsilon)

	// scale invariance
	scaled := lo.Map(prices, func(p float64, _ int) float64 { return p * 3.5 })
	scaledPrecision, err := MoneyPrecisionAtK(recommended, bought, scaled, 5)
	require.NoError(t, err)
	assert.InDelta(t, 60.0/150.0, scaledPrecision, epsilon)

	_, err = MoneyPrecisionAtK(recommended, bought, []float64{0, 0, 0, 0, 0}, 5)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
	_, err = MoneyPrecisionAtK(recommended, bought, []float64{1}, 5)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestMoneyRecallAtK(t *testing.T) {
	recommended := []int64{1, 2, 3, 4, 5}
	bought := []int64{2, 4, 9}
	pricesRecommended := []float64{10, 20, 30, 40, 50}
	pricesBought := []float64{20, 40, 60}
	recall, err := MoneyRecallAtK(recommended, bought, pricesRecommended, pricesBought, 5)
	require.NoError(t, err)
	assert.InDelta(t, 60.0/120.0, recall, epsilon)

	// scale invariance
	scale := func(p float64, _ int) float64 { return p * 0.1 }
	scaledRecall, err := MoneyRecallAtK(recommended, bought, lo.Map(pricesRecommended, scale), lo.Map(pricesBought, scale), 5)
	require.NoError(t, err)
	assert.InDelta(t, recall, scaledRecall, epsilon)

	_, err = MoneyRecallAtK(recommended, bought, pricesRecommended, nil, 5)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestAveragePrecisionAtK(t *testing.T) {
	// no hit
	ap, err := AveragePrecisionAtK([]int64{1, 2, 3}, []int64{4, 5}, 3)
	require.NoError(t, err)
	assert.Zero(t, ap)
	// hits beyond k do not count
	ap, err = AveragePrecisionAtK([]int64{1, 2, 3}, []int64{3}, 2)
	require.NoError(t, err)
	assert.Zero(t, ap)
	// all relevant prefix
	ap, err = AveragePrecisionAtK([]int64{7, 8, 9, 1}, []int64{9, 8, 7}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1, ap, epsilon)
	// relevant at ranks 2 and 4: (1/2 + 2/4) / 2
	ap, err = AveragePrecisionAtK([]int64{1, 2, 3, 4, 5}, []int64{2, 4}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ap, epsilon)
	// relevant at ranks 1 and 3: (1 + 2/3) / 2
	ap, err = AveragePrecisionAtK([]int64{5, 1, 6}, []int64{5, 6}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6.0, ap, epsilon)
}
