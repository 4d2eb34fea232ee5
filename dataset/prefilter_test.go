// Copyright 2025 gorse Project Authors
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

package dataset

import (
	"testing"

	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/config"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefilterFixture struct {
	transactions []Transaction
	features     []ItemFeature
}

func (f *prefilterFixture) add(itemId int64, department string, day int, sales float64, users ...int64) {
	for _, userId := range users {
		f.transactions = append(f.transactions, Transaction{
			UserId: userId, ItemId: itemId, Quantity: 1, SalesValue: sales, Day: day,
		})
	}
	f.features = append(f.features, ItemFeature{ItemId: itemId, Department: department})
}

func newPrefilterFixture() *prefilterFixture {
	f := &prefilterFixture{}
	f.add(1, "A", 6, 2, 1, 2, 3, 4, 5, 6) // too popular
	f.add(2, "A", 6, 2, 1)                // not popular
	f.add(3, "A", 4, 2, 1, 2, 3)          // not sold recently
	f.add(4, "B", 6, 2, 1, 2, 3)          // small department
	f.add(5, "A", 6, 0.05, 1, 2, 3)       // too cheap
	f.add(6, "A", 6, 10, 1, 2, 3)         // too expensive
	f.add(7, "A", 6, 2, 1, 2, 3, 4)
	f.add(8, "A", 6, 2, 5, 6, 7)
	f.add(9, "A", 6, 2, 8, 9, 10)
	return f
}

func newPrefilterConfig() *config.PrefilterConfig {
	return &config.PrefilterConfig{
		MaxUserShare:      0.5,
		MinUserShare:      0.2,
		MinDay:            5,
		MinDepartmentSize: 1,
		MinPriceShare:     0.01,
		MaxPriceShare:     0.5,
		TakeNPopular:      2,
		Sentinel:          config.DefaultSentinel,
	}
}

func TestPrefilter(t *testing.T) {
	f := newPrefilterFixture()
	input := append([]Transaction(nil), f.transactions...)
	result, err := Prefilter(f.transactions, f.features, newPrefilterConfig())
	require.NoError(t, err)
	counts := lo.CountValuesBy(result, func(t Transaction) int64 { return t.ItemId })
	assert.Equal(t, map[int64]int{7: 4, 8: 3, config.DefaultSentinel: 3}, counts)
	// relabelled rows keep their users
	sentinelUsers := lo.FilterMap(result, func(t Transaction, _ int) (int64, bool) {
		return t.UserId, t.ItemId == config.DefaultSentinel
	})
	assert.Equal(t, []int64{8, 9, 10}, sentinelUsers)
	// input is untouched
	assert.Equal(t, input, f.transactions)
}

func TestPrefilterWithoutFeatures(t *testing.T) {
	f := newPrefilterFixture()
	result, err := Prefilter(f.transactions, nil, newPrefilterConfig())
	require.NoError(t, err)
	counts := lo.CountValuesBy(result, func(t Transaction) int64 { return t.ItemId })
	assert.Equal(t, map[int64]int{7: 4, 4: 3, config.DefaultSentinel: 6}, counts)
}

func TestPrefilterEmpty(t *testing.T) {
	f := newPrefilterFixture()
	cfg := newPrefilterConfig()
	cfg.MinUserShare = 1
	_, err := Prefilter(f.transactions, f.features, cfg)
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}
