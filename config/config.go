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

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/litvinenko630/recommendation-sys/model"
	"github.com/spf13/viper"
)

const DefaultSentinel = 999999

// Config is the configuration for the recommender pipeline.
type Config struct {
	Prefilter   PrefilterConfig   `mapstructure:"prefilter"`
	Recommender RecommenderConfig `mapstructure:"recommender"`
	Evaluate    EvaluateConfig    `mapstructure:"evaluate"`
}

// PrefilterConfig is the configuration for catalog prefiltering.
type PrefilterConfig struct {
	MaxUserShare      float64 `mapstructure:"max_user_share" validate:"gte=0,lte=1"`
	MinUserShare      float64 `mapstructure:"min_user_share" validate:"gte=0,lte=1"`
	MinDay            int     `mapstructure:"min_day" validate:"gte=0"`
	MinDepartmentSize int     `mapstructure:"min_department_size" validate:"gte=0"`
	MinPriceShare     float64 `mapstructure:"min_price_share" validate:"gte=0"`
	MaxPriceShare     float64 `mapstructure:"max_price_share" validate:"gtefield=MinPriceShare"`
	TakeNPopular      int     `mapstructure:"take_n_popular" validate:"gt=0"`
	Sentinel          int64   `mapstructure:"sentinel"`
}

// RecommenderConfig is the configuration for model training.
type RecommenderConfig struct {
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	Reg         float64 `mapstructure:"reg" validate:"gte=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gt=0"`
	Alpha       float64 `mapstructure:"alpha" validate:"gte=0"`
	InitStdDev  float64 `mapstructure:"init_std" validate:"gt=0"`
	RandomState int64   `mapstructure:"random_state"`
	NJobs       int     `mapstructure:"n_jobs" validate:"gt=0"`
	Weighting   string  `mapstructure:"weighting" validate:"oneof=bm25 tfidf none"`
	BM25K1      float64 `mapstructure:"bm25_k1" validate:"gte=0"`
	BM25B       float64 `mapstructure:"bm25_b" validate:"gte=0,lte=1"`
	OwnK        int     `mapstructure:"own_k" validate:"gt=0"`
	Sentinel    int64   `mapstructure:"sentinel"`
}

// EvaluateConfig is the configuration for offline evaluation.
type EvaluateConfig struct {
	N        int `mapstructure:"n" validate:"gt=0"`
	TopK     int `mapstructure:"top_k" validate:"gt=0"`
	TestDays int `mapstructure:"test_days" validate:"gt=0"`
	NJobs    int `mapstructure:"n_jobs" validate:"gt=0"`
}

// GetParams translates the configuration into ALS hyper-parameters.
func (config *RecommenderConfig) GetParams() model.Params {
	return model.Params{
		model.NFactors:    config.NFactors,
		model.Reg:         config.Reg,
		model.NEpochs:     config.NEpochs,
		model.Alpha:       config.Alpha,
		model.InitStdDev:  config.InitStdDev,
		model.RandomState: config.RandomState,
	}
}

// GetOwnParams translates the configuration into item KNN hyper-parameters.
func (config *RecommenderConfig) GetOwnParams() model.Params {
	return model.Params{
		model.K: config.OwnK,
	}
}

func (config *RecommenderConfig) GetFitConfig() *model.FitConfig {
	return model.NewFitConfig().SetJobs(config.NJobs)
}

func GetDefaultConfig() *Config {
	return &Config{
		Prefilter: PrefilterConfig{
			MaxUserShare:      0.5,
			MinUserShare:      0.0025,
			MinDay:            386,
			MinDepartmentSize: 100,
			MinPriceShare:     0.0005,
			MaxPriceShare:     0.12,
			TakeNPopular:      5000,
			Sentinel:          DefaultSentinel,
		},
		Recommender: RecommenderConfig{
			NFactors:    128,
			Reg:         0.05,
			NEpochs:     15,
			Alpha:       1.0,
			InitStdDev:  0.01,
			RandomState: 0,
			NJobs:       4,
			Weighting:   "bm25",
			BM25K1:      100,
			BM25B:       0.8,
			OwnK:        1,
			Sentinel:    DefaultSentinel,
		},
		Evaluate: EvaluateConfig{
			N:        5,
			TopK:     5,
			TestDays: 21,
			NJobs:    4,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [prefilter]
	v.SetDefault("prefilter.max_user_share", defaultConfig.Prefilter.MaxUserShare)
	v.SetDefault("prefilter.min_user_share", defaultConfig.Prefilter.MinUserShare)
	v.SetDefault("prefilter.min_day", defaultConfig.Prefilter.MinDay)
	v.SetDefault("prefilter.min_department_size", defaultConfig.Prefilter.MinDepartmentSize)
	v.SetDefault("prefilter.min_price_share", defaultConfig.Prefilter.MinPriceShare)
	v.SetDefault("prefilter.max_price_share", defaultConfig.Prefilter.MaxPriceShare)
	v.SetDefault("prefilter.take_n_popular", defaultConfig.Prefilter.TakeNPopular)
	v.SetDefault("prefilter.sentinel", defaultConfig.Prefilter.Sentinel)
	// [recommender]
	v.SetDefault("recommender.n_factors", defaultConfig.Recommender.NFactors)
	v.SetDefault("recommender.reg", defaultConfig.Recommender.Reg)
	v.SetDefault("recommender.n_epochs", defaultConfig.Recommender.NEpochs)
	v.SetDefault("recommender.alpha", defaultConfig.Recommender.Alpha)
	v.SetDefault("recommender.init_std", defaultConfig.Recommender.InitStdDev)
	v.SetDefault("recommender.random_state", defaultConfig.Recommender.RandomState)
	v.SetDefault("recommender.n_jobs", defaultConfig.Recommender.NJobs)
	v.SetDefault("recommender.weighting", defaultConfig.Recommender.Weighting)
	v.SetDefault("recommender.bm25_k1", defaultConfig.Recommender.BM25K1)
	v.SetDefault("recommender.bm25_b", defaultConfig.Recommender.BM25B)
	v.SetDefault("recommender.own_k", defaultConfig.Recommender.OwnK)
	v.SetDefault("recommender.sentinel", defaultConfig.Recommender.Sentinel)
	// [evaluate]
	v.SetDefault("evaluate.n", defaultConfig.Evaluate.N)
	v.SetDefault("evaluate.top_k", defaultConfig.Evaluate.TopK)
	v.SetDefault("evaluate.test_days", defaultConfig.Evaluate.TestDays)
	v.SetDefault("evaluate.n_jobs", defaultConfig.Evaluate.NJobs)
}

// LoadConfig loads configuration from a TOML or YAML file. Environment variables
// with prefix RECSYS_ override file values, e.g. RECSYS_RECOMMENDER_N_FACTORS.
// An empty path yields defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix("RECSYS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf, func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.ErrorUnused = true
	}); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Trace(err)
	}
	if config.Prefilter.Sentinel != config.Recommender.Sentinel {
		return errors.NotValidf("sentinel %d of prefilter differs from sentinel %d of recommender",
			config.Prefilter.Sentinel, config.Recommender.Sentinel)
	}
	return nil
}
