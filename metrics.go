// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gobbg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobbg_programming_attempts_total",
			Help: "Programming attempts by target device and outcome",
		},
		[]string{"device", "outcome"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gobbg_programming_duration_seconds",
			Help:    "Wall time of programmer runs that were spawned",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"device"},
	)
)

func observeAttempt(res *Result) {
	AttemptsTotal.WithLabelValues(string(res.Device), res.Outcome.String()).Inc()
	if res.Spawned() {
		AttemptDuration.WithLabelValues(string(res.Device)).Observe(res.Duration.Seconds())
	}
}
