// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package database

import (
	"github.com/lihao628/massa/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	writes          prometheus.Counter
	writtenKeys     *prometheus.CounterVec
	streamedBatches *prometheus.CounterVec
	timeErrors      prometheus.Counter
	historyLength   *prometheus.GaugeVec
}

// newStoreMetrics creates the metrics of a store and registers them with the
// given registerer. A nil registerer leaves the metrics unregistered.
func newStoreMetrics(registerer prometheus.Registerer) *storeMetrics {
	factory := promauto.With(registerer)
	return &storeMetrics{
		writes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "state_store_writes_total",
				Help: "The total number of committed write batches",
			},
		),
		writtenKeys: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "state_store_written_keys_total",
				Help: "The total number of updated or deleted keys",
			},
			[]string{"space"},
		),
		streamedBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "state_store_streamed_batches_total",
				Help: "The total number of stream batches produced for bootstrapping nodes",
			},
			[]string{"space"},
		),
		timeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "state_store_stream_time_errors_total",
				Help: "The total number of stream requests rejected for a change ID outside of the change history",
			},
		),
		historyLength: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "state_store_change_history_length",
				Help: "The number of change IDs retained in the change history",
			},
			[]string{"space"},
		),
	}
}

func (m *storeMetrics) recordWrite(space backend.Space, keys int) {
	m.writtenKeys.WithLabelValues(space.String()).Add(float64(keys))
}

func (m *storeMetrics) recordHistoryLength(space backend.Space, length int) {
	m.historyLength.WithLabelValues(space.String()).Set(float64(length))
}
