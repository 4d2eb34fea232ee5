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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTransactions(t *testing.T) {
	text := "user_id,basket_id,day,item_id,quantity,sales_value,store_id,week_no\n" +
		"2375,26984851472,1,1004906,1,1.39,364,1\n" +
		"2375,26984851472,2,1033142,2,0.82,364,1\n"
	transactions, err := ReadTransactions(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []Transaction{
		{UserId: 2375, ItemId: 1004906, Quantity: 1, SalesValue: 1.39, Day: 1, Week: 1},
		{UserId: 2375, ItemId: 1033142, Quantity: 2, SalesValue: 0.82, Day: 2, Week: 1},
	}, transactions)
}

func TestReadTransactionsAliases(t *testing.T) {
	text := "household_key,PRODUCT_ID,QUANTITY,SALES_VALUE,DAY,WEEK\n1,2,3,4.5,6,1\n"
	transactions, err := ReadTransactions(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []Transaction{{UserId: 1, ItemId: 2, Quantity: 3, SalesValue: 4.5, Day: 6, Week: 1}}, transactions)
}

func TestReadTransactionsInvalid(t *testing.T) {
	_, err := ReadTransactions(strings.NewReader("user_id,quantity\n1,2\n"))
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = ReadTransactions(strings.NewReader("user_id,item_id,quantity,sales_value,day\n1,x,1,1,1\n"))
	assert.Error(t, err)
	// missing day would empty the catalog in prefiltering
	_, err = ReadTransactions(strings.NewReader("user_id,item_id,quantity,sales_value\n1,2,1,1\n"))
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = ReadTransactions(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadItemFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(path, []byte("PRODUCT_ID,MANUFACTURER,DEPARTMENT\n25671,2,GROCERY\n26081,2,MISC. TRANS.\n"), 0o644))
	features, err := LoadItemFeatures(path)
	require.NoError(t, err)
	assert.Equal(t, []ItemFeature{
		{ItemId: 25671, Department: "GROCERY"},
		{ItemId: 26081, Department: "MISC. TRANS."},
	}, features)
	_, err = LoadTransactions(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestSplitByDay(t *testing.T) {
	transactions := []Transaction{
		{UserId: 1, ItemId: 1, Day: 1},
		{UserId: 1, ItemId: 2, Day: 8},
		{UserId: 2, ItemId: 3, Day: 10},
		{UserId: 2, ItemId: 4, Day: 7},
	}
	train, test := SplitByDay(transactions, 3)
	assert.Equal(t, []Transaction{{UserId: 1, ItemId: 1, Day: 1}, {UserId: 2, ItemId: 4, Day: 7}}, train)
	assert.Equal(t, []Transaction{{UserId: 1, ItemId: 2, Day: 8}, {UserId: 2, ItemId: 3, Day: 10}}, test)
	train, test = SplitByDay(nil, 3)
	assert.Empty(t, train)
	assert.Empty(t, test)
}

func TestGroupPurchases(t *testing.T) {
	purchases := GroupPurchases([]Transaction{
		{UserId: 1, ItemId: 3},
		{UserId: 1, ItemId: 1},
		{UserId: 2, ItemId: 5},
		{UserId: 1, ItemId: 3},
	})
	assert.Equal(t, map[int64][]int64{1: {3, 1}, 2: {5}}, purchases)
}

func TestItemPrices(t *testing.T) {
	prices := ItemPrices([]Transaction{
		{ItemId: 1, Quantity: 1, SalesValue: 2},
		{ItemId: 1, Quantity: 3, SalesValue: 6},
		{ItemId: 2, Quantity: 0, SalesValue: 4},
	})
	assert.InDelta(t, 2, prices[1], 1e-9)
	assert.InDelta(t, 4, prices[2], 1e-9)
}
