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
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelModel    = "model"
	LabelStrategy = "strategy"
	LabelOutcome  = "outcome"

	StrategySimilarItems = "similar_items"
	StrategySimilarUsers = "similar_users"

	OutcomeOK              = "ok"
	OutcomeUnknownUser     = "unknown_user"
	OutcomeInvariantBreach = "invariant_breach"
	OutcomeError           = "error"
)

var (
	FitSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recsys",
		Subsystem: "recommender",
		Name:      "fit_seconds",
	}, []string{LabelModel})
	RecommendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recsys",
		Subsystem: "recommender",
		Name:      "recommend_total",
	}, []string{LabelStrategy, LabelOutcome})
	RecommendSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recsys",
		Subsystem: "recommender",
		Name:      "recommend_seconds",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
	}, []string{LabelStrategy})
	EvaluateUsersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recsys",
		Subsystem: "evaluate",
		Name:      "users_total",
	}, []string{LabelOutcome})
)

// outcome classifies the error of a recommendation.
func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUnknownUser):
		return OutcomeUnknownUser
	case errors.Is(err, ErrInvariantBreach):
		return OutcomeInvariantBreach
	default:
		return OutcomeError
	}
}
