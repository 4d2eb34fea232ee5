// Copyright 2021 gorse Project Authors
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

package logics

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/base/log"
	"github.com/litvinenko630/recommendation-sys/config"
	"github.com/litvinenko630/recommendation-sys/dataset"
	"github.com/litvinenko630/recommendation-sys/model/knn"
	"github.com/litvinenko630/recommendation-sys/model/mf"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// ErrUnknownUser is returned for a user absent from the training data.
	ErrUnknownUser = errors.ConstError("unknown user")
	// ErrInvariantBreach is returned when de-duplication leaves fewer
	// recommendations than requested.
	ErrInvariantBreach = errors.ConstError("invariant breach")
)

// Recommender generates recommendations from a factorization model trained on
// the weighted interaction matrix and an item KNN trained on raw counts. It is
// read-only once built and safe for concurrent use.
type Recommender struct {
	preserved *dataset.InteractionMatrix
	als       *mf.ALS
	own       *knn.ItemKNN
	sentinel  int64
}

// NewRecommender builds interaction matrices from transactions and trains both models.
func NewRecommender(ctx context.Context, transactions []dataset.Transaction, cfg *config.RecommenderConfig) (*Recommender, error) {
	preserved, err := dataset.NewInteractionMatrix(transactions)
	if err != nil {
		return nil, errors.Trace(err)
	}
	weighted, err := dataset.Weight(preserved, cfg.Weighting, float32(cfg.BM25K1), float32(cfg.BM25B))
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("build interaction matrix",
		zap.Int("n_users", preserved.CountUsers()),
		zap.Int("n_items", preserved.CountItems()),
		zap.String("weighting", cfg.Weighting))

	als := mf.NewALS(cfg.GetParams())
	start := time.Now()
	if err = als.Fit(ctx, weighted, cfg.GetFitConfig()); err != nil {
		return nil, errors.Annotate(err, "failed to fit als")
	}
	FitSeconds.WithLabelValues("als").Set(time.Since(start).Seconds())

	own := knn.NewItemKNN(cfg.GetOwnParams())
	start = time.Now()
	if err = own.Fit(ctx, preserved, cfg.GetFitConfig()); err != nil {
		return nil, errors.Annotate(err, "failed to fit item knn")
	}
	FitSeconds.WithLabelValues("item_knn").Set(time.Since(start).Seconds())

	return &Recommender{
		preserved: preserved,
		als:       als,
		own:       own,
		sentinel:  cfg.Sentinel,
	}, nil
}

func (r *Recommender) CountUsers() int {
	return r.preserved.CountUsers()
}

func (r *Recommender) CountItems() int {
	return r.preserved.CountItems()
}

// Users returns raw ids of known users in ascending order.
func (r *Recommender) Users() []int64 {
	return r.preserved.UserIndex().Ids()
}

func (r *Recommender) userIndex(userId int64) (int32, error) {
	userIndex, ok := r.preserved.UserIndex().ToDense(userId)
	if !ok {
		return 0, errors.Annotatef(ErrUnknownUser, "user %d", userId)
	}
	return userIndex, nil
}

func (r *Recommender) itemId(itemIndex int32) int64 {
	itemId, _ := r.preserved.ItemIndex().ToRaw(itemIndex)
	return itemId
}

// TopPurchased returns up to n items of a user ordered by purchase count. The
// sentinel item is skipped and equal counts keep item order.
func (r *Recommender) TopPurchased(userId int64, n int) ([]int64, error) {
	userIndex, err := r.userIndex(userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.topPurchased(userIndex, n), nil
}

func (r *Recommender) topPurchased(userIndex int32, n int) []int64 {
	row := r.preserved.Row(userIndex)
	sentinelIndex, hasSentinel := r.preserved.ItemIndex().ToDense(r.sentinel)
	items := make([]int32, 0, len(row))
	for i := range row {
		if !hasSentinel || int32(i) != sentinelIndex {
			items = append(items, int32(i))
		}
	}
	slices.SortStableFunc(items, func(a, b int32) int {
		return cmp.Compare(row[b], row[a])
	})
	return lo.Map(items[:min(n, len(items))], func(i int32, _ int) int64 { return r.itemId(i) })
}

// SimilarItemsRecommendation replaces each of the n items a user bought most
// with its closest item in latent space.
func (r *Recommender) SimilarItemsRecommendation(userId int64, n int) (result []int64, err error) {
	defer observe(StrategySimilarItems, time.Now(), &err)
	if n <= 0 {
		return nil, errors.NotValidf("n = %d", n)
	}
	userIndex, err := r.userIndex(userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var items []int64
	for _, itemId := range r.topPurchased(userIndex, n) {
		itemIndex, _ := r.preserved.ItemIndex().ToDense(itemId)
		similar, _, err := r.als.SimilarItems(itemIndex, 2)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(similar) > 1 {
			items = append(items, r.itemId(similar[1]))
		}
	}
	return checkLength(lo.Uniq(items), n)
}

// SimilarUsersRecommendation takes the favorite item of each of the n users
// closest to a user in latent space.
func (r *Recommender) SimilarUsersRecommendation(userId int64, n int) (result []int64, err error) {
	defer observe(StrategySimilarUsers, time.Now(), &err)
	if n <= 0 {
		return nil, errors.NotValidf("n = %d", n)
	}
	userIndex, err := r.userIndex(userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	users, _, err := r.als.SimilarUsers(userIndex, n+1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var items []int64
	for _, neighbor := range lo.Without(users, userIndex) {
		recommended, _, err := r.own.Recommend(neighbor, r.preserved.Row(neighbor), 1,
			knn.WithFilterAlreadyLiked(false), knn.WithRecalculateUser(false))
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(recommended) > 0 {
			items = append(items, r.itemId(recommended[0]))
		}
	}
	return checkLength(lo.Uniq(items), n)
}

func checkLength(items []int64, n int) ([]int64, error) {
	if len(items) != n {
		return nil, errors.Annotatef(ErrInvariantBreach, "%d distinct recommendations for n = %d", len(items), n)
	}
	return items, nil
}

func observe(strategy string, start time.Time, err *error) {
	RecommendTotal.WithLabelValues(strategy, outcome(*err)).Inc()
	RecommendSeconds.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}
