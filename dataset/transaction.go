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
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Transaction is a row of the purchase log.
type Transaction struct {
	UserId     int64
	ItemId     int64
	Quantity   int
	SalesValue float64
	Day        int
	Week       int
}

// ItemFeature holds catalog attributes of an item.
type ItemFeature struct {
	ItemId     int64
	Department string
}

// column aliases found in retail exports
var columnAliases = map[string]string{
	"household_key": "user_id",
	"product_id":    "item_id",
	"week":          "week_no",
}

type csvHeader map[string]int

func readHeader(reader *csv.Reader, required ...string) (csvHeader, error) {
	row, err := reader.Read()
	if err != nil {
		return nil, errors.Annotate(err, "failed to read header")
	}
	header := make(csvHeader, len(row))
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(name))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		header[name] = i
	}
	for _, name := range required {
		if _, ok := header[name]; !ok {
			return nil, errors.NotFoundf("column %s", name)
		}
	}
	return header, nil
}

func (h csvHeader) get(row []string, name string) (string, bool) {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

func (h csvHeader) int64(row []string, name string) (int64, error) {
	s, _ := h.get(row, name)
	v, err := strconv.ParseInt(s, 10, 64)
	return v, errors.Annotatef(err, "column %s", name)
}

func (h csvHeader) int(row []string, name string) (int, error) {
	s, ok := h.get(row, name)
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	return v, errors.Annotatef(err, "column %s", name)
}

func (h csvHeader) float(row []string, name string) (float64, error) {
	s, ok := h.get(row, name)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, errors.Annotatef(err, "column %s", name)
}

// ReadTransactions parses transactions from CSV with a header row. The columns
// user_id, item_id, quantity, sales_value and day are required; week_no is
// optional.
func ReadTransactions(r io.Reader) ([]Transaction, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	header, err := readHeader(reader, "user_id", "item_id", "quantity", "sales_value", "day")
	if err != nil {
		return nil, errors.Trace(err)
	}
	var transactions []Transaction
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		var t Transaction
		if t.UserId, err = header.int64(row, "user_id"); err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		if t.ItemId, err = header.int64(row, "item_id"); err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		if t.Quantity, err = header.int(row, "quantity"); err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		if t.SalesValue, err = header.float(row, "sales_value"); err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		if t.Day, err = header.int(row, "day"); err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		if t.Week, err = header.int(row, "week_no"); err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		transactions = append(transactions, t)
	}
	return transactions, nil
}

// ReadItemFeatures parses item features from CSV with a header row.
func ReadItemFeatures(r io.Reader) ([]ItemFeature, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	header, err := readHeader(reader, "item_id", "department")
	if err != nil {
		return nil, errors.Trace(err)
	}
	var features []ItemFeature
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		itemId, err := header.int64(row, "item_id")
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		department, _ := header.get(row, "department")
		features = append(features, ItemFeature{ItemId: itemId, Department: department})
	}
	return features, nil
}

// LoadTransactions reads transactions from a CSV file.
func LoadTransactions(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return ReadTransactions(f)
}

// LoadItemFeatures reads item features from a CSV file.
func LoadItemFeatures(path string) ([]ItemFeature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return ReadItemFeatures(f)
}

// SplitByDay puts transactions of the last testDays days into the test set and
// the rest into the train set.
func SplitByDay(transactions []Transaction, testDays int) (train, test []Transaction) {
	if len(transactions) == 0 {
		return nil, nil
	}
	lastDay := lo.MaxBy(transactions, func(a, b Transaction) bool { return a.Day > b.Day }).Day
	for _, t := range transactions {
		if t.Day > lastDay-testDays {
			test = append(test, t)
		} else {
			train = append(train, t)
		}
	}
	return
}

// GroupPurchases collects distinct items bought by each user in order of first purchase.
func GroupPurchases(transactions []Transaction) map[int64][]int64 {
	purchases := make(map[int64][]int64)
	for _, t := range transactions {
		purchases[t.UserId] = append(purchases[t.UserId], t.ItemId)
	}
	for userId, items := range purchases {
		purchases[userId] = lo.Uniq(items)
	}
	return purchases
}

// ItemPrices returns the mean unit price of each item. Items sold with zero
// quantity fall back to the mean sales value per row.
func ItemPrices(transactions []Transaction) map[int64]float64 {
	type acc struct {
		sales    float64
		quantity int
		rows     int
	}
	accs := make(map[int64]*acc)
	for _, t := range transactions {
		a, ok := accs[t.ItemId]
		if !ok {
			a = &acc{}
			accs[t.ItemId] = a
		}
		a.sales += t.SalesValue
		a.quantity += t.Quantity
		a.rows++
	}
	return lo.MapValues(accs, func(a *acc, _ int64) float64 {
		if a.quantity > 0 {
			return a.sales / float64(a.quantity)
		}
		return a.sales / float64(a.rows)
	})
}
