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

package mf

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/base/log"
	"github.com/litvinenko630/recommendation-sys/dataset"
	"github.com/litvinenko630/recommendation-sys/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClusteredMatrix returns two groups: users 0..3 buy items 0..2 and users
// 4..7 buy items 3..5. User 8 buys item 6 only.
func newClusteredMatrix(t *testing.T) *dataset.InteractionMatrix {
	var transactions []dataset.Transaction
	for u := int64(0); u < 8; u++ {
		first := int64(0)
		if u >= 4 {
			first = 3
		}
		for i := first; i < first+3; i++ {
			for k := int64(0); k <= u%2; k++ {
				transactions = append(transactions, dataset.Transaction{UserId: u, ItemId: i})
			}
		}
	}
	transactions = append(transactions, dataset.Transaction{UserId: 8, ItemId: 6})
	m, err := dataset.NewInteractionMatrix(transactions)
	require.NoError(t, err)
	return m
}

func newTestALS() *ALS {
	return NewALS(model.Params{
		model.NFactors:    4,
		model.NEpochs:     5,
		model.Reg:         0.01,
		model.Alpha:       10,
		model.InitStdDev:  0.1,
		model.RandomState: 1,
	})
}

func TestMain(m *testing.M) {
	log.CloseLogger()
	m.Run()
}

func TestALS_Fit(t *testing.T) {
	matrix := newClusteredMatrix(t)
	als := newTestALS()
	assert.True(t, als.Invalid())
	err := als.Fit(context.Background(), matrix, model.NewFitConfig())
	require.NoError(t, err)
	assert.False(t, als.Invalid())
	assert.Equal(t, 9, als.CountUsers())
	assert.Equal(t, 7, als.CountItems())
	assert.Len(t, als.GetUserFactor(0), 4)
	assert.Len(t, als.GetItemFactor(0), 4)
	assert.Equal(t, uint(9), als.UserTrained.Count())
	assert.Equal(t, uint(7), als.ItemTrained.Count())

	als.Clear()
	assert.True(t, als.Invalid())
}

func TestALS_SimilarItems(t *testing.T) {
	als := newTestALS()
	require.NoError(t, als.Fit(context.Background(), newClusteredMatrix(t), model.NewFitConfig()))

	indices, scores, err := als.SimilarItems(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, indices)
	assert.Equal(t, float32(1), scores[0])
	assert.InDelta(t, 1, scores[1], 1e-4)
	assert.InDelta(t, 1, scores[2], 1e-4)

	indices, scores, err = als.SimilarItems(4, 100)
	require.NoError(t, err)
	assert.Len(t, indices, 7)
	assert.Equal(t, int32(4), indices[0])
	assert.ElementsMatch(t, []int32{3, 5}, indices[1:3])
	for i := 2; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1], scores[i])
	}

	indices, _, err = als.SimilarItems(6, 1)
	require.NoError(t, err)
	assert.Equal(t, []int32{6}, indices)
}

func TestALS_SimilarUsers(t *testing.T) {
	als := newTestALS()
	require.NoError(t, als.Fit(context.Background(), newClusteredMatrix(t), model.NewFitConfig()))

	indices, scores, err := als.SimilarUsers(5, 4)
	require.NoError(t, err)
	assert.Len(t, indices, 4)
	assert.Equal(t, int32(5), indices[0])
	assert.Equal(t, float32(1), scores[0])
	assert.ElementsMatch(t, []int32{4, 6, 7}, indices[1:])
}

func TestALS_SimilarErrors(t *testing.T) {
	als := newTestALS()
	_, _, err := als.SimilarItems(0, 2)
	assert.True(t, errors.Is(err, model.ErrNotFitted))
	_, _, err = als.SimilarUsers(0, 2)
	assert.True(t, errors.Is(err, model.ErrNotFitted))

	require.NoError(t, als.Fit(context.Background(), newClusteredMatrix(t), model.NewFitConfig()))
	_, _, err = als.SimilarItems(7, 2)
	assert.True(t, errors.Is(err, model.ErrUnknownIndex))
	_, _, err = als.SimilarItems(-1, 2)
	assert.True(t, errors.Is(err, model.ErrUnknownIndex))
	_, _, err = als.SimilarUsers(9, 2)
	assert.True(t, errors.Is(err, model.ErrUnknownIndex))
	_, _, err = als.SimilarUsers(0, 0)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestALS_Deterministic(t *testing.T) {
	matrix := newClusteredMatrix(t)
	a := newTestALS()
	require.NoError(t, a.Fit(context.Background(), matrix, model.NewFitConfig().SetJobs(1)))
	b := newTestALS()
	require.NoError(t, b.Fit(context.Background(), matrix, model.NewFitConfig().SetJobs(4)))
	assert.Equal(t, a.UserFactor, b.UserFactor)
	assert.Equal(t, a.ItemFactor, b.ItemFactor)
}

func TestALS_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	als := newTestALS()
	err := als.Fit(ctx, newClusteredMatrix(t), model.NewFitConfig().SetJobs(2))
	assert.True(t, errors.Is(err, context.Canceled))
}
