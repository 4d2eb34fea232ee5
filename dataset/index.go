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
	"slices"

	"github.com/samber/lo"
)

// Index maps raw ids to dense ids in [0, Len()) and back. Dense ids follow the
// ascending order of raw ids. An Index is never mutated after construction.
type Index struct {
	ids   []int64
	dense map[int64]int32
}

// NewIndex builds an index from raw ids. Duplicates are removed.
func NewIndex(ids []int64) *Index {
	sorted := lo.Uniq(ids)
	slices.Sort(sorted)
	dense := make(map[int64]int32, len(sorted))
	for i, id := range sorted {
		dense[id] = int32(i)
	}
	return &Index{ids: sorted, dense: dense}
}

// Len returns the number of ids.
func (idx *Index) Len() int {
	return len(idx.ids)
}

// ToDense converts a raw id to a dense id.
func (idx *Index) ToDense(id int64) (int32, bool) {
	i, ok := idx.dense[id]
	return i, ok
}

// ToRaw converts a dense id to a raw id.
func (idx *Index) ToRaw(i int32) (int64, bool) {
	if i < 0 || int(i) >= len(idx.ids) {
		return 0, false
	}
	return idx.ids[i], true
}

// Ids returns raw ids ordered by dense id. The slice must not be modified.
func (idx *Index) Ids() []int64 {
	return idx.ids
}
