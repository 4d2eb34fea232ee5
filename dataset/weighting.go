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
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	WeightingBM25  = "bm25"
	WeightingTFIDF = "tfidf"
	WeightingNone  = "none"
)

// ItemIDF returns the inverse document frequency of items:
//
//	IDF(i) = log(N) - log(1 + df(i))
//
// N is the number of users and df(i) is the number of users with a non-zero
// cell in column i.
func (m *InteractionMatrix) ItemIDF() []float32 {
	n := math32.Log(float32(m.CountUsers()))
	return lo.Map(m.itemFeedback, func(users []int32, _ int) float32 {
		return n - math32.Log1p(float32(len(users)))
	})
}

// BM25Weight rescales cells with Okapi BM25:
//
//	x'(u,i) = x(u,i) * (k1 + 1) / (k1 * norm(u) + x(u,i)) * IDF(i)
//	norm(u) = (1 - b) + b * len(u) / avg(len)
//
// len(u) is the row sum of user u. The input matrix is not modified.
func BM25Weight(m *InteractionMatrix, k1, b float32) *InteractionMatrix {
	idf := m.ItemIDF()
	lengths := lo.Map(m.values, func(row []float32, _ int) float32 { return lo.Sum(row) })
	avgLength := lo.Sum(lengths) / float32(len(lengths))
	return m.mapValues(func(u, i int32, v float32) float32 {
		norm := (1 - b) + b*lengths[u]/avgLength
		return v * (k1 + 1) / (k1*norm + v) * idf[i]
	})
}

// TFIDFWeight rescales cells by x'(u,i) = sqrt(x(u,i)) * IDF(i). The input
// matrix is not modified.
func TFIDFWeight(m *InteractionMatrix) *InteractionMatrix {
	idf := m.ItemIDF()
	return m.mapValues(func(_, i int32, v float32) float32 {
		return math32.Sqrt(v) * idf[i]
	})
}

// Weight applies the named weighting scheme.
func Weight(m *InteractionMatrix, scheme string, k1, b float32) (*InteractionMatrix, error) {
	switch scheme {
	case WeightingBM25:
		return BM25Weight(m, k1, b), nil
	case WeightingTFIDF:
		return TFIDFWeight(m), nil
	case WeightingNone, "":
		return m, nil
	default:
		return nil, errors.NotSupportedf("weighting %q", scheme)
	}
}
