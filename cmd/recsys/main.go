// Copyright 2022 gorse Project Authors
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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/base/log"
	"github.com/litvinenko630/recommendation-sys/cmd/version"
	"github.com/litvinenko630/recommendation-sys/config"
	"github.com/litvinenko630/recommendation-sys/dataset"
	"github.com/litvinenko630/recommendation-sys/logics"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	strategyItems = "items"
	strategyUsers = "users"
	strategyAll   = "all"
)

var rootCommand = &cobra.Command{
	Use:   "recsys",
	Short: "Batch recommender for retail purchase logs.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate recommendation strategies on the last days of a transaction log.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		conf := loadConfig(cmd)
		transactions, features := loadData(cmd)
		strategy, _ := cmd.Flags().GetString("strategy")
		strategies, err := selectStrategies(strategy)
		if err != nil {
			log.Logger().Fatal("invalid strategy", zap.Error(err))
		}

		train, test := dataset.SplitByDay(transactions, conf.Evaluate.TestDays)
		log.Logger().Info("split transactions",
			zap.Int("n_train", len(train)),
			zap.Int("n_test", len(test)),
			zap.Int("test_days", conf.Evaluate.TestDays))
		train, err = dataset.Prefilter(train, features, &conf.Prefilter)
		if err != nil {
			log.Logger().Fatal("failed to prefilter transactions", zap.Error(err))
		}
		recommender, err := logics.NewRecommender(ctx, train, &conf.Recommender)
		if err != nil {
			log.Logger().Fatal("failed to build recommender", zap.Error(err))
		}

		truth := dataset.GroupPurchases(test)
		prices := dataset.ItemPrices(transactions)
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Strategy", "Users", "Unknown", "Breaches",
			fmt.Sprintf("HitRate@%d", conf.Evaluate.TopK),
			fmt.Sprintf("Precision@%d", conf.Evaluate.TopK),
			fmt.Sprintf("Recall@%d", conf.Evaluate.TopK),
			fmt.Sprintf("MAP@%d", conf.Evaluate.TopK),
			fmt.Sprintf("MoneyPrecision@%d", conf.Evaluate.TopK))
		for _, name := range strategies {
			bar := progressbar.Default(int64(len(truth)), "Evaluating "+name)
			report, err := logics.Evaluate(ctx, strategyFunc(recommender, name), truth, prices, &conf.Evaluate,
				logics.WithProgress(func() { _ = bar.Add(1) }))
			if err != nil {
				log.Logger().Fatal("failed to evaluate", zap.String("strategy", name), zap.Error(err))
			}
			_ = bar.Finish()
			if err = table.Append([]string{
				name,
				strconv.Itoa(report.Users),
				strconv.Itoa(report.UnknownUsers),
				strconv.Itoa(report.InvariantBreaches),
				fmt.Sprintf("%.4f", report.HitRate),
				fmt.Sprintf("%.4f", report.Precision),
				fmt.Sprintf("%.4f", report.Recall),
				fmt.Sprintf("%.4f", report.AveragePrecision),
				fmt.Sprintf("%.4f", report.MoneyPrecision),
			}); err != nil {
				log.Logger().Fatal("failed to append row", zap.Error(err))
			}
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
		writeMetrics(cmd)
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend items to a user.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		conf := loadConfig(cmd)
		transactions, features := loadData(cmd)
		userId, _ := cmd.Flags().GetInt64("user")
		n, _ := cmd.Flags().GetInt("n")
		strategy, _ := cmd.Flags().GetString("strategy")
		strategies, err := selectStrategies(strategy)
		if err != nil {
			log.Logger().Fatal("invalid strategy", zap.Error(err))
		}

		transactions, err = dataset.Prefilter(transactions, features, &conf.Prefilter)
		if err != nil {
			log.Logger().Fatal("failed to prefilter transactions", zap.Error(err))
		}
		recommender, err := logics.NewRecommender(ctx, transactions, &conf.Recommender)
		if err != nil {
			log.Logger().Fatal("failed to build recommender", zap.Error(err))
		}
		for _, name := range strategies {
			items, err := strategyFunc(recommender, name)(userId, n)
			if err != nil {
				log.Logger().Fatal("failed to recommend",
					zap.String("strategy", name), zap.Int64("user_id", userId), zap.Error(err))
			}
			fmt.Printf("%s\t%v\n", name, lo.Map(items, func(itemId int64, _ int) string {
				return strconv.FormatInt(itemId, 10)
			}))
		}
		writeMetrics(cmd)
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().StringP("transactions", "t", "", "path of transaction CSV")
	rootCommand.PersistentFlags().StringP("items", "i", "", "path of item feature CSV")
	rootCommand.PersistentFlags().StringP("strategy", "s", strategyAll, "strategy (items, users or all)")
	rootCommand.PersistentFlags().String("metrics-path", "", "path of Prometheus text file written on exit")
	recommendCommand.Flags().Int64P("user", "u", 0, "user id")
	recommendCommand.Flags().IntP("n", "n", 5, "number of recommendations")
	rootCommand.AddCommand(evaluateCommand, recommendCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	return conf
}

// loadData reads transactions and, if given, item features.
func loadData(cmd *cobra.Command) ([]dataset.Transaction, []dataset.ItemFeature) {
	transactionsPath, _ := cmd.Flags().GetString("transactions")
	if transactionsPath == "" {
		log.Logger().Fatal("transactions path is required")
	}
	transactions, err := dataset.LoadTransactions(transactionsPath)
	if err != nil {
		log.Logger().Fatal("failed to load transactions", zap.Error(err))
	}
	var features []dataset.ItemFeature
	if itemsPath, _ := cmd.Flags().GetString("items"); itemsPath != "" {
		features, err = dataset.LoadItemFeatures(itemsPath)
		if err != nil {
			log.Logger().Fatal("failed to load item features", zap.Error(err))
		}
	}
	log.Logger().Info("load dataset",
		zap.Int("n_transactions", len(transactions)),
		zap.Int("n_item_features", len(features)))
	return transactions, features
}

// writeMetrics dumps the default Prometheus registry in text format, e.g. for
// the node exporter textfile collector.
func writeMetrics(cmd *cobra.Command) {
	path, _ := cmd.Flags().GetString("metrics-path")
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		log.Logger().Fatal("failed to write metrics", zap.String("path", path), zap.Error(err))
	}
	log.Logger().Info("write metrics", zap.String("path", path))
}

func selectStrategies(strategy string) ([]string, error) {
	switch strategy {
	case strategyItems, strategyUsers:
		return []string{strategy}, nil
	case strategyAll:
		return []string{strategyItems, strategyUsers}, nil
	default:
		return nil, errors.NotSupportedf("strategy %s", strategy)
	}
}

func strategyFunc(recommender *logics.Recommender, strategy string) logics.StrategyFunc {
	if strategy == strategyUsers {
		return recommender.SimilarUsersRecommendation
	}
	return recommender.SimilarItemsRecommendation
}
