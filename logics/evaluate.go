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
	"context"
	"slices"

	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/base/log"
	"github.com/litvinenko630/recommendation-sys/common/parallel"
	"github.com/litvinenko630/recommendation-sys/config"
	"github.com/litvinenko630/recommendation-sys/model/eval"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// StrategyFunc recommends n items to a user.
type StrategyFunc func(userId int64, n int) ([]int64, error)

// Report holds mean metrics over evaluated users.
type Report struct {
	Users             int
	UnknownUsers      int
	InvariantBreaches int
	HitRate           float64
	Precision         float64
	Recall            float64
	AveragePrecision  float64
	// MoneyPrecision is averaged over users whose recommendations have prices.
	MoneyPrecision float64
	MoneyUsers     int
}

type userScore struct {
	outcome        string
	hitRate        float64
	precision      float64
	recall         float64
	ap             float64
	moneyPrecision float64
	hasMoney       bool
}

type evaluateOptions struct {
	progress func()
}

type EvaluateOption func(*evaluateOptions)

// WithProgress registers a callback invoked once per user. It must be safe
// for concurrent use.
func WithProgress(progress func()) EvaluateOption {
	return func(options *evaluateOptions) {
		options.progress = progress
	}
}

// Evaluate runs a strategy for every user in truth and averages metrics at
// TopK. Users the strategy rejects with ErrUnknownUser or ErrInvariantBreach
// are counted and skipped, other errors abort the evaluation. prices may be
// nil to skip money precision.
func Evaluate(ctx context.Context, recommend StrategyFunc, truth map[int64][]int64, prices map[int64]float64,
	cfg *config.EvaluateConfig, opts ...EvaluateOption) (*Report, error) {
	options := evaluateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	users := lo.Keys(truth)
	slices.Sort(users)
	scores := make([]userScore, len(users))
	err := parallel.Parallel(ctx, len(users), cfg.NJobs, func(_, jobId int) error {
		if options.progress != nil {
			defer options.progress()
		}
		score, err := evaluateUser(recommend, users[jobId], truth[users[jobId]], prices, cfg)
		if err != nil {
			return errors.Annotatef(err, "failed to evaluate user %d", users[jobId])
		}
		scores[jobId] = score
		EvaluateUsersTotal.WithLabelValues(score.outcome).Inc()
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	report := &Report{}
	for _, score := range scores {
		switch score.outcome {
		case OutcomeUnknownUser:
			report.UnknownUsers++
		case OutcomeInvariantBreach:
			report.InvariantBreaches++
		default:
			report.Users++
			report.HitRate += score.hitRate
			report.Precision += score.precision
			report.Recall += score.recall
			report.AveragePrecision += score.ap
			if score.hasMoney {
				report.MoneyUsers++
				report.MoneyPrecision += score.moneyPrecision
			}
		}
	}
	if report.Users > 0 {
		report.HitRate /= float64(report.Users)
		report.Precision /= float64(report.Users)
		report.Recall /= float64(report.Users)
		report.AveragePrecision /= float64(report.Users)
	}
	if report.MoneyUsers > 0 {
		report.MoneyPrecision /= float64(report.MoneyUsers)
	}
	log.Logger().Info("complete evaluation",
		zap.Int("n_users", report.Users),
		zap.Int("n_unknown_users", report.UnknownUsers),
		zap.Int("n_invariant_breaches", report.InvariantBreaches),
		zap.Float64("hit_rate", report.HitRate),
		zap.Float64("precision", report.Precision),
		zap.Float64("recall", report.Recall),
		zap.Float64("map", report.AveragePrecision))
	return report, nil
}

func evaluateUser(recommend StrategyFunc, userId int64, bought []int64, prices map[int64]float64,
	cfg *config.EvaluateConfig) (userScore, error) {
	recommended, err := recommend(userId, cfg.N)
	if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrInvariantBreach) {
		log.Logger().Debug("skip user", zap.Int64("user_id", userId), zap.Error(err))
		return userScore{outcome: outcome(err)}, nil
	} else if err != nil {
		return userScore{}, errors.Trace(err)
	}
	score := userScore{outcome: OutcomeOK}
	score.hitRate = eval.HitRateAtK(recommended, bought, cfg.TopK)
	if score.precision, err = eval.PrecisionAtK(recommended, bought, cfg.TopK); err != nil {
		return userScore{}, errors.Trace(err)
	}
	if score.recall, err = eval.RecallAtK(recommended, bought, cfg.TopK); err != nil {
		return userScore{}, errors.Trace(err)
	}
	if score.ap, err = eval.AveragePrecisionAtK(recommended, bought, cfg.TopK); err != nil {
		return userScore{}, errors.Trace(err)
	}
	if prices != nil {
		pricesRecommended := lo.Map(recommended, func(itemId int64, _ int) float64 { return prices[itemId] })
		score.moneyPrecision, err = eval.MoneyPrecisionAtK(recommended, bought, pricesRecommended, cfg.TopK)
		if err == nil {
			score.hasMoney = true
		} else if !errors.Is(err, eval.ErrDivisionByZero) {
			return userScore{}, errors.Trace(err)
		}
	}
	return score, nil
}
