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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/base/log"
	"github.com/litvinenko630/recommendation-sys/common/heap"
	"github.com/litvinenko630/recommendation-sys/config"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Prefilter shrinks the catalog of a transaction log:
//
//  1. drop items bought by more than MaxUserShare of users,
//  2. drop items bought by less than MinUserShare of users,
//  3. keep items sold on or after MinDay,
//  4. keep items from departments with more than MinDepartmentSize items,
//  5. drop items whose min price / max price is below MinPriceShare,
//  6. drop items whose min price / max price is above MaxPriceShare,
//  7. keep the TakeNPopular items with most rows and relabel the rest as Sentinel.
//
// User shares of steps 1 and 2 are computed on the input. Step 4 is skipped if
// features is nil. The input slice is not modified.
func Prefilter(transactions []Transaction, features []ItemFeature, cfg *config.PrefilterConfig) ([]Transaction, error) {
	df := transactions
	log.Logger().Info("start prefiltering",
		zap.Int("n_transactions", len(df)),
		zap.Int("n_items", countItems(df)))

	// popular and unpopular items
	users := mapset.NewThreadUnsafeSet[int64]()
	buyers := make(map[int64]mapset.Set[int64])
	for _, t := range df {
		users.Add(t.UserId)
		if _, ok := buyers[t.ItemId]; !ok {
			buyers[t.ItemId] = mapset.NewThreadUnsafeSet[int64]()
		}
		buyers[t.ItemId].Add(t.UserId)
	}
	share := func(itemId int64) float64 {
		return float64(buyers[itemId].Cardinality()) / float64(users.Cardinality())
	}
	df = filterItems(df, "too popular", func(itemId int64) bool { return share(itemId) <= cfg.MaxUserShare })
	df = filterItems(df, "not popular", func(itemId int64) bool { return share(itemId) >= cfg.MinUserShare })

	// recently sold items
	recent := mapset.NewThreadUnsafeSet[int64]()
	for _, t := range df {
		if t.Day >= cfg.MinDay {
			recent.Add(t.ItemId)
		}
	}
	df = filterItems(df, "not sold recently", func(itemId int64) bool { return recent.Contains(itemId) })

	// departments
	if features != nil {
		departments := make(map[string]mapset.Set[int64])
		for _, f := range features {
			if _, ok := departments[f.Department]; !ok {
				departments[f.Department] = mapset.NewThreadUnsafeSet[int64]()
			}
			departments[f.Department].Add(f.ItemId)
		}
		kept := mapset.NewThreadUnsafeSet[int64]()
		for _, items := range departments {
			if items.Cardinality() > cfg.MinDepartmentSize {
				kept = kept.Union(items)
			}
		}
		df = filterItems(df, "small department", func(itemId int64) bool { return kept.Contains(itemId) })
	}

	// prices
	if len(df) > 0 {
		maxPrice := lo.MaxBy(df, func(a, b Transaction) bool { return a.SalesValue > b.SalesValue }).SalesValue
		if maxPrice > 0 {
			minPrices := make(map[int64]float64)
			for _, t := range df {
				if p, ok := minPrices[t.ItemId]; !ok || t.SalesValue < p {
					minPrices[t.ItemId] = t.SalesValue
				}
			}
			df = filterItems(df, "too cheap", func(itemId int64) bool {
				return minPrices[itemId]/maxPrice >= cfg.MinPriceShare
			})
			df = filterItems(df, "too expensive", func(itemId int64) bool {
				return minPrices[itemId]/maxPrice <= cfg.MaxPriceShare
			})
		} else {
			log.Logger().Warn("skip price filters since max sales value is not positive",
				zap.Float64("max_sales_value", maxPrice))
		}
	}

	if len(df) == 0 {
		return nil, errors.Annotate(ErrEmptyDataset, "all transactions are filtered out")
	}

	// top popular items
	counts := lo.CountValuesBy(df, func(t Transaction) int64 { return t.ItemId })
	filter := heap.NewTopKFilter[int64, int](cfg.TakeNPopular)
	for itemId, count := range counts {
		filter.Push(itemId, count)
	}
	top := mapset.NewThreadUnsafeSet(filter.PopAllValues()...)
	result := make([]Transaction, len(df))
	for i, t := range df {
		result[i] = t
		if !top.Contains(t.ItemId) {
			result[i].ItemId = cfg.Sentinel
		}
	}
	log.Logger().Info("complete prefiltering",
		zap.Int("n_transactions", len(result)),
		zap.Int("n_items", countItems(result)))
	return result, nil
}

// filterItems keeps transactions whose item satisfies keep. It always returns a new slice.
func filterItems(df []Transaction, reason string, keep func(itemId int64) bool) []Transaction {
	result := lo.Filter(df, func(t Transaction, _ int) bool { return keep(t.ItemId) })
	log.Logger().Debug("filter items",
		zap.String("reason", reason),
		zap.Int("n_dropped_items", countItems(df)-countItems(result)),
		zap.Int("n_transactions", len(result)))
	return result
}

func countItems(df []Transaction) int {
	return len(lo.UniqBy(df, func(t Transaction) int64 { return t.ItemId }))
}
