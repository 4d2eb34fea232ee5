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

// Package eval scores a recommended list against the items a user bought.
package eval

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// ErrDivisionByZero is returned when a list or a price sum used as a
// denominator is empty.
const ErrDivisionByZero = errors.ConstError("division by zero")

func head[T any](list []T, k int) []T {
	return list[:max(min(k, len(list)), 0)]
}

// hits counts recommended positions holding a bought item.
func hits[T comparable](recommended []T, bought mapset.Set[T]) int {
	return lo.CountBy(recommended, func(item T) bool { return bought.Contains(item) })
}

// HitRate returns 1 if any recommended item was bought, otherwise 0.
func HitRate[T comparable](recommended, bought []T) float64 {
	if hits(recommended, mapset.NewThreadUnsafeSet(bought...)) > 0 {
		return 1
	}
	return 0
}

// HitRateAtK is HitRate of the first k recommended items.
func HitRateAtK[T comparable](recommended, bought []T, k int) float64 {
	return HitRate(head(recommended, k), bought)
}

// Precision is the number of distinct recommended items that were bought
// divided by the length of the recommended list.
func Precision[T comparable](recommended, bought []T) (float64, error) {
	if len(recommended) == 0 {
		return 0, errors.Annotate(ErrDivisionByZero, "empty recommended list")
	}
	relevant := mapset.NewThreadUnsafeSet(recommended...).Intersect(mapset.NewThreadUnsafeSet(bought...))
	return float64(relevant.Cardinality()) / float64(len(recommended)), nil
}

// PrecisionAtK is Precision of the first k recommended items.
func PrecisionAtK[T comparable](recommended, bought []T, k int) (float64, error) {
	return Precision(head(recommended, k), bought)
}

// Recall is the share of bought items that were recommended.
func Recall[T comparable](recommended, bought []T) (float64, error) {
	if len(bought) == 0 {
		return 0, errors.Annotate(ErrDivisionByZero, "empty bought list")
	}
	return float64(hits(bought, mapset.NewThreadUnsafeSet(recommended...))) / float64(len(bought)), nil
}

// RecallAtK is Recall of the first k recommended items.
func RecallAtK[T comparable](recommended, bought []T, k int) (float64, error) {
	return Recall(head(recommended, k), bought)
}

// moneyHits sums prices of recommended positions holding a bought item.
func moneyHits[T comparable](recommended, bought []T, prices []float64) float64 {
	boughtSet := mapset.NewThreadUnsafeSet(bought...)
	var sum float64
	for i, item := range recommended {
		if boughtSet.Contains(item) {
			sum += prices[i]
		}
	}
	return sum
}

// MoneyPrecisionAtK is the price share of bought items among the first k
// recommended items. pricesRecommended is aligned with recommended.
func MoneyPrecisionAtK[T comparable](recommended, bought []T, pricesRecommended []float64, k int) (float64, error) {
	recommended = head(recommended, k)
	if len(pricesRecommended) < len(recommended) {
		return 0, errors.NotValidf("%d prices for %d recommended items", len(pricesRecommended), len(recommended))
	}
	pricesRecommended = pricesRecommended[:len(recommended)]
	total := lo.Sum(pricesRecommended)
	if total == 0 {
		return 0, errors.Annotate(ErrDivisionByZero, "zero price sum of recommended items")
	}
	return moneyHits(recommended, bought, pricesRecommended) / total, nil
}

// MoneyRecallAtK is the price of bought items among the first k recommended
// items divided by the total price of bought items.
func MoneyRecallAtK[T comparable](recommended, bought []T, pricesRecommended, pricesBought []float64, k int) (float64, error) {
	recommended = head(recommended, k)
	if len(pricesRecommended) < len(recommended) {
		return 0, errors.NotValidf("%d prices for %d recommended items", len(pricesRecommended), len(recommended))
	}
	total := lo.Sum(pricesBought)
	if total == 0 {
		return 0, errors.Annotate(ErrDivisionByZero, "zero price sum of bought items")
	}
	return moneyHits(recommended, bought, pricesRecommended) / total, nil
}

// AveragePrecisionAtK is the mean of PrecisionAtK over the ranks within k that
// hold a bought item. It is 0 if there is no such rank.
func AveragePrecisionAtK[T comparable](recommended, bought []T, k int) (float64, error) {
	recommended = head(recommended, k)
	boughtSet := mapset.NewThreadUnsafeSet(bought...)
	var sum float64
	var relevant int
	for i, item := range recommended {
		if boughtSet.Contains(item) {
			relevant++
			sum += float64(relevant) / float64(i+1)
		}
	}
	if relevant == 0 {
		return 0, nil
	}
	return sum / float64(relevant), nil
}
