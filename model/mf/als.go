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
	"fmt"
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
	"gonum.org/v1/gonum/mat"
)

// ALS [1] is the weighted matrix factorization for implicit feedback. The
// confidence of an observed cell x is c = 1 + alpha * x with preference p = 1,
// every other cell has c = 1 and p = 0. Each half epoch solves
//
//	(Y^T Y + Y^T (C^u - I) Y + reg I) x_u = Y^T C^u p(u)
//
// for every user with Cholesky decomposition, then the same for items.
//
// Hyper-parameters:
//
//	Reg        - The regularization parameter. Default is 0.05.
//	NFactors   - The number of latent factors. Default is 128.
//	NEpochs    - The number of training epochs. Default is 15.
//	Alpha      - The confidence scale of observed cells. Default is 1.
//	InitMean   - The mean of initial latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial latent factors. Default is 0.01.
//
// [1] Hu, Yifan, Yehuda Koren, and Chris Volinsky. "Collaborative filtering for
// implicit feedback datasets." 2008 Eighth IEEE International Conference on Data
// Mining. IEEE, 2008.
type ALS struct {
	model.BaseModel
	// Model parameters
	UserFactor  [][]float32
	ItemFactor  [][]float32
	UserTrained *bitset.BitSet
	ItemTrained *bitset.BitSet
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float32
	alpha      float32
	initMean   float32
	initStdDev float32
}

var _ model.Model = (*ALS)(nil)

// NewALS creates an ALS model.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS model.
func (als *ALS) SetParams(params model.Params) {
	als.BaseModel.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 128)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 15)
	als.reg = als.Params.GetFloat32(model.Reg, 0.05)
	als.alpha = als.Params.GetFloat32(model.Alpha, 1)
	als.initMean = als.Params.GetFloat32(model.InitMean, 0)
	als.initStdDev = als.Params.GetFloat32(model.InitStdDev, 0.01)
}

func (als *ALS) Clear() {
	als.UserFactor = nil
	als.ItemFactor = nil
	als.UserTrained = nil
	als.ItemTrained = nil
}

func (als *ALS) Invalid() bool {
	return als == nil ||
		als.UserFactor == nil ||
		als.ItemFactor == nil
}

func (als *ALS) CountUsers() int {
	return len(als.UserFactor)
}

func (als *ALS) CountItems() int {
	return len(als.ItemFactor)
}

// GetUserFactor returns the latent factor of a user.
func (als *ALS) GetUserFactor(userIndex int32) []float32 {
	return als.UserFactor[userIndex]
}

// GetItemFactor returns the latent factor of an item.
func (als *ALS) GetItemFactor(itemIndex int32) []float32 {
	return als.ItemFactor[itemIndex]
}

func (als *ALS) init(m *dataset.InteractionMatrix) {
	rng := als.GetRandomGenerator()
	als.UserFactor = rng.NormalMatrix(m.CountUsers(), als.nFactors, als.initMean, als.initStdDev)
	als.ItemFactor = rng.NormalMatrix(m.CountItems(), als.nFactors, als.initMean, als.initStdDev)
	als.UserTrained = bitset.New(uint(m.CountUsers()))
	for userIndex, items := range m.UserFeedback() {
		if len(items) > 0 {
			als.UserTrained.Set(uint(userIndex))
		}
	}
	als.ItemTrained = bitset.New(uint(m.CountItems()))
	for itemIndex, users := range m.ItemFeedback() {
		if len(users) > 0 {
			als.ItemTrained.Set(uint(itemIndex))
		}
	}
}

// Fit the ALS model on a (weighted) interaction matrix. Results do not depend
// on the number of jobs.
func (als *ALS) Fit(ctx context.Context, m *dataset.InteractionMatrix, config *model.FitConfig) error {
	if config == nil {
		config = model.NewFitConfig()
	}
	log.Logger().Info("fit als",
		zap.Int("n_users", m.CountUsers()),
		zap.Int("n_items", m.CountItems()),
		zap.Int("n_feedback", m.CountFeedback()),
		zap.Any("params", als.GetParams()),
		zap.Any("config", config))
	als.init(m)
	fitStart := time.Now()
	for ep := 1; ep <= als.nEpochs; ep++ {
		epochStart := time.Now()
		// update user factors
		if err := als.solve(ctx, config.Jobs, als.UserFactor, als.ItemFactor, m.UserFeedback(), func(u, i int32) float32 {
			return m.At(u, i)
		}); err != nil {
			return errors.Annotatef(err, "failed to update user factors at epoch %d", ep)
		}
		// update item factors
		if err := als.solve(ctx, config.Jobs, als.ItemFactor, als.UserFactor, m.ItemFeedback(), func(i, u int32) float32 {
			return m.At(u, i)
		}); err != nil {
			return errors.Annotatef(err, "failed to update item factors at epoch %d", ep)
		}
		if config.Verbose > 0 && ep%config.Verbose == 0 {
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", ep, als.nEpochs),
				zap.Duration("epoch_time", time.Since(epochStart)))
		}
	}
	log.Logger().Info("fit als complete",
		zap.Duration("fit_time", time.Since(fitStart)))
	return nil
}

// solve updates every row of x given the fixed factors y. feedback lists the
// observed columns of each row and value returns the cell of (row, column).
func (als *ALS) solve(ctx context.Context, jobs int, x, y [][]float32, feedback [][]int32,
	value func(row, col int32) float32) error {
	if jobs < 1 {
		jobs = 1
	}
	// Y^T Y
	yData := make([]float64, len(y)*als.nFactors)
	for i, factor := range y {
		for f, v := range factor {
			yData[i*als.nFactors+f] = float64(v)
		}
	}
	yVecs := make([]*mat.VecDense, len(y))
	for i := range y {
		yVecs[i] = mat.NewVecDense(als.nFactors, yData[i*als.nFactors:(i+1)*als.nFactors])
	}
	yty := mat.NewSymDense(als.nFactors, nil)
	if len(y) > 0 {
		yty.SymOuterK(1, mat.NewDense(len(y), als.nFactors, yData).T())
	}
	// per worker buffers
	a := make([]*mat.SymDense, jobs)
	b := make([]*mat.VecDense, jobs)
	sol := make([]*mat.VecDense, jobs)
	chol := make([]mat.Cholesky, jobs)
	for j := 0; j < jobs; j++ {
		a[j] = mat.NewSymDense(als.nFactors, nil)
		b[j] = mat.NewVecDense(als.nFactors, nil)
		sol[j] = mat.NewVecDense(als.nFactors, nil)
	}
	return parallel.Parallel(ctx, len(x), jobs, func(workerId, row int) error {
		a[workerId].CopySym(yty)
		b[workerId].Zero()
		for _, col := range feedback[row] {
			v := value(int32(row), col)
			if v <= 0 {
				continue
			}
			c := 1 + float64(als.alpha)*float64(v)
			a[workerId].SymRankOne(a[workerId], c-1, yVecs[col])
			b[workerId].AddScaledVec(b[workerId], c, yVecs[col])
		}
		for f := 0; f < als.nFactors; f++ {
			a[workerId].SetSym(f, f, a[workerId].At(f, f)+float64(als.reg))
		}
		if ok := chol[workerId].Factorize(a[workerId]); !ok {
			return errors.Errorf("normal equation of row %d is not positive definite", row)
		}
		if err := chol[workerId].SolveVecTo(sol[workerId], b[workerId]); err != nil {
			// the solution is still computed for ill-conditioned systems
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return errors.Trace(err)
			}
		}
		for f := range x[row] {
			x[row][f] = float32(sol[workerId].AtVec(f))
		}
		return nil
	})
}

// SimilarItems returns the n items closest to an item by cosine similarity of
// latent factors. The item itself comes first with score 1. Ties are broken by
// ascending index.
func (als *ALS) SimilarItems(itemIndex int32, n int) ([]int32, []float32, error) {
	if als.Invalid() {
		return nil, nil, errors.Trace(model.ErrNotFitted)
	}
	return similar(als.ItemFactor, itemIndex, n)
}

// SimilarUsers returns the n users closest to a user by cosine similarity of
// latent factors. The user itself comes first with score 1.
func (als *ALS) SimilarUsers(userIndex int32, n int) ([]int32, []float32, error) {
	if als.Invalid() {
		return nil, nil, errors.Trace(model.ErrNotFitted)
	}
	return similar(als.UserFactor, userIndex, n)
}

func similar(factors [][]float32, index int32, n int) ([]int32, []float32, error) {
	if n <= 0 {
		return nil, nil, errors.NotValidf("n = %d", n)
	}
	if index < 0 || int(index) >= len(factors) {
		return nil, nil, errors.Annotatef(model.ErrUnknownIndex, "index %d", index)
	}
	filter := heap.NewTopKFilter[int32, float32](n - 1)
	for j := range factors {
		if int32(j) != index {
			filter.Push(int32(j), floats.Cosine(factors[index], factors[j]))
		}
	}
	elems := filter.PopAll()
	indices := make([]int32, 0, len(elems)+1)
	scores := make([]float32, 0, len(elems)+1)
	indices = append(indices, index)
	scores = append(scores, 1)
	for _, elem := range elems {
		indices = append(indices, elem.Value)
		scores = append(scores, elem.Weight)
	}
	return indices, scores, nil
}
