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
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// ErrEmptyDataset is returned when there is nothing to build from.
const ErrEmptyDataset = errors.ConstError("empty dataset")

// InteractionMatrix is a dense user-item matrix. Rows follow the user index and
// columns follow the item index. A matrix is read-only once built.
type InteractionMatrix struct {
	userIndex    *Index
	itemIndex    *Index
	values       [][]float32
	userFeedback [][]int32
	itemFeedback [][]int32
}

// NewInteractionMatrix pivots transactions into a matrix whose cells count the
// transaction rows of each (user, item) pair.
func NewInteractionMatrix(transactions []Transaction) (*InteractionMatrix, error) {
	if len(transactions) == 0 {
		return nil, errors.Trace(ErrEmptyDataset)
	}
	userIndex := NewIndex(lo.Map(transactions, func(t Transaction, _ int) int64 { return t.UserId }))
	itemIndex := NewIndex(lo.Map(transactions, func(t Transaction, _ int) int64 { return t.ItemId }))
	values := make([][]float32, userIndex.Len())
	for i := range values {
		values[i] = make([]float32, itemIndex.Len())
	}
	for _, t := range transactions {
		u, _ := userIndex.ToDense(t.UserId)
		i, _ := itemIndex.ToDense(t.ItemId)
		values[u][i]++
	}
	return newInteractionMatrix(userIndex, itemIndex, values), nil
}

func newInteractionMatrix(userIndex, itemIndex *Index, values [][]float32) *InteractionMatrix {
	m := &InteractionMatrix{
		userIndex:    userIndex,
		itemIndex:    itemIndex,
		values:       values,
		userFeedback: make([][]int32, userIndex.Len()),
		itemFeedback: make([][]int32, itemIndex.Len()),
	}
	for u, row := range values {
		for i, v := range row {
			if v != 0 {
				m.userFeedback[u] = append(m.userFeedback[u], int32(i))
				m.itemFeedback[i] = append(m.itemFeedback[i], int32(u))
			}
		}
	}
	return m
}

func (m *InteractionMatrix) CountUsers() int {
	return m.userIndex.Len()
}

func (m *InteractionMatrix) CountItems() int {
	return m.itemIndex.Len()
}

// CountFeedback returns the number of non-zero cells.
func (m *InteractionMatrix) CountFeedback() int {
	return lo.SumBy(m.userFeedback, func(f []int32) int { return len(f) })
}

func (m *InteractionMatrix) UserIndex() *Index {
	return m.userIndex
}

func (m *InteractionMatrix) ItemIndex() *Index {
	return m.itemIndex
}

// At returns the cell of a user and an item.
func (m *InteractionMatrix) At(userIndex, itemIndex int32) float32 {
	return m.values[userIndex][itemIndex]
}

// Row returns the row of a user. The slice must not be modified.
func (m *InteractionMatrix) Row(userIndex int32) []float32 {
	return m.values[userIndex]
}

// UserFeedback returns the items with non-zero cells for each user.
func (m *InteractionMatrix) UserFeedback() [][]int32 {
	return m.userFeedback
}

// ItemFeedback returns the users with non-zero cells for each item.
func (m *InteractionMatrix) ItemFeedback() [][]int32 {
	return m.itemFeedback
}

// Clone copies cells and shares indices.
func (m *InteractionMatrix) Clone() *InteractionMatrix {
	values := make([][]float32, len(m.values))
	for i, row := range m.values {
		values[i] = append([]float32(nil), row...)
	}
	return &InteractionMatrix{
		userIndex:    m.userIndex,
		itemIndex:    m.itemIndex,
		values:       values,
		userFeedback: m.userFeedback,
		itemFeedback: m.itemFeedback,
	}
}

// mapValues returns a matrix with the same labels where every non-zero cell is
// replaced by fn. Zero cells stay zero, so the sparsity pattern is shared.
func (m *InteractionMatrix) mapValues(fn func(userIndex, itemIndex int32, v float32) float32) *InteractionMatrix {
	c := m.Clone()
	for u, items := range m.userFeedback {
		for _, i := range items {
			c.values[u][i] = fn(int32(u), i, m.values[u][i])
		}
	}
	return c
}
