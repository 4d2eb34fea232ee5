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

package knn

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/base/log"
	"github.com/litvinenko630/recommendation-sys/common/floats"
	"github.com/litvinenko630/recommendation-sys/common/heap"
	"github.com/litvinenko630/recommendation-sys/common/parallel"
	"github.com/litvinenko630/recommendation-sys/dataset"
	"github.com/litvinenko630/recommendation-sys/model"
	"go.uber.org/zap"
)

// ItemKNN recommends items co-occurring with the items of a user. The
// similarity of items i and j is the dot product of their columns
//
//	s(i,j) = sum_u x(u,i) * x(u,j)
//
// and only the K most similar items of each item (itself included) are kept.
// The score of item j for user u is sum_i x(u,i) * s(i,j).
//
// Hyper-parameters:
//
//	K - The number of neighbors kept per item. Default is 1.
type ItemKNN struct {
	model.BaseModel
	k            int
	nUsers       int
	Neighbors    [][]int32
	Similarities [][]float32
}

var _ model.Model = (*ItemKNN)(nil)

// NewItemKNN creates an item KNN model.
func NewItemKNN(params model.Params) *ItemKNN {
	knn := new(ItemKNN)
	knn.SetParams(params)
	return knn
}

func (knn *ItemKNN) SetParams(params model.Params) {
	knn.BaseModel.SetParams(params)
	knn.k = knn.Params.GetInt(model.K, 1)
}

func (knn *ItemKNN) Clear() {
	knn.nUsers = 0
	knn.Neighbors = nil
	knn.Similarities = nil
}

func (knn *ItemKNN) Invalid() bool {
	return knn == nil || knn.Neighbors == nil
}

func (knn *ItemKNN) CountItems() int {
	return len(knn.Neighbors)
}

// Fit computes item neighbors from an unweighted interaction matrix.
func (knn *ItemKNN) Fit(ctx context.Context, m *dataset.InteractionMatrix, config *model.FitConfig) error {
	if config == nil {
		config = model.NewFitConfig()
	}
	if knn.k <= 0 {
		return errors.NotValidf("K = %d", knn.k)
	}
	log.Logger().Info("fit item knn",
		zap.Int("n_users", m.CountUsers()),
		zap.Int("n_items", m.CountItems()),
		zap.Int("n_feedback", m.CountFeedback()),
		zap.Int("k", knn.k),
		zap.Int("n_jobs", config.Jobs))
	fitStart := time.Now()
	jobs := max(config.Jobs, 1)
	neighbors := make([][]int32, m.CountItems())
	similarities := make([][]float32, m.CountItems())
	// per worker buffers
	buffers := make([][]float32, jobs)
	for i := range buffers {
		buffers[i] = make([]float32, m.CountItems())
	}
	err := parallel.Parallel(ctx, m.CountItems(), jobs, func(workerId, itemIndex int) error {
		sims := buffers[workerId]
		floats.Zero(sims)
		for _, userIndex := range m.ItemFeedback()[itemIndex] {
			floats.MulConstAddTo(m.Row(userIndex), m.At(userIndex, int32(itemIndex)), sims)
		}
		filter := heap.NewTopKFilter[int32, float32](knn.k)
		for _, userIndex := range m.ItemFeedback()[itemIndex] {
			for _, neighbor := range m.UserFeedback()[userIndex] {
				if sims[neighbor] != 0 {
					filter.Push(neighbor, sims[neighbor])
					// push each neighbor once
					sims[neighbor] = 0
				}
			}
		}
		elems := filter.PopAll()
		neighbors[itemIndex] = make([]int32, len(elems))
		similarities[itemIndex] = make([]float32, len(elems))
		for i, elem := range elems {
			neighbors[itemIndex][i] = elem.Value
			similarities[itemIndex][i] = elem.Weight
		}
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	knn.nUsers = m.CountUsers()
	knn.Neighbors = neighbors
	knn.Similarities = similarities
	log.Logger().Info("fit item knn complete",
		zap.Duration("fit_time", time.Since(fitStart)))
	return nil
}

type recommendOptions struct {
	filterAlreadyLiked bool
	recalculateUser    bool
}

type RecommendOption func(*recommendOptions)

// WithFilterAlreadyLiked drops items the user has interacted with. Enabled by default.
func WithFilterAlreadyLiked(filter bool) RecommendOption {
	return func(options *recommendOptions) {
		options.filterAlreadyLiked = filter
	}
}

// WithRecalculateUser is accepted for compatibility with factor models. Item
// neighborhoods always score the given row, so it has no effect.
func WithRecalculateUser(recalculate bool) RecommendOption {
	return func(options *recommendOptions) {
		options.recalculateUser = recalculate
	}
}

// Recommend returns at most n items for a user with the given interaction row,
// ordered by descending score and then ascending index.
func (knn *ItemKNN) Recommend(userIndex int32, userRow []float32, n int, opts ...RecommendOption) ([]int32, []float32, error) {
	if knn.Invalid() {
		return nil, nil, errors.Trace(model.ErrNotFitted)
	}
	if userIndex < 0 || int(userIndex) >= knn.nUsers {
		return nil, nil, errors.Annotatef(model.ErrUnknownIndex, "user index %d", userIndex)
	}
	if len(userRow) != knn.CountItems() {
		return nil, nil, errors.NotValidf("row of %d items for %d items", len(userRow), knn.CountItems())
	}
	if n <= 0 {
		return nil, nil, errors.NotValidf("n = %d", n)
	}
	options := recommendOptions{filterAlreadyLiked: true}
	for _, opt := range opts {
		opt(&options)
	}
	liked := bitset.New(uint(len(userRow)))
	scores := make([]float32, len(userRow))
	for i, x := range userRow {
		if x == 0 {
			continue
		}
		if x > 0 {
			liked.Set(uint(i))
		}
		for k, j := range knn.Neighbors[i] {
			scores[j] += x * knn.Similarities[i][k]
		}
	}
	filter := heap.NewTopKFilter[int32, float32](n)
	for j, score := range scores {
		if options.filterAlreadyLiked && liked.Test(uint(j)) {
			continue
		}
		filter.Push(int32(j), score)
	}
	elems := filter.PopAll()
	items := make([]int32, len(elems))
	weights := make([]float32, len(elems))
	for i, elem := range elems {
		items[i], weights[i] = elem.Value, elem.Weight
	}
	return items, weights, nil
}
