// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chatproxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentdesk_proxy_chat_replies_total",
			Help: "Chat replies served by source (gateway or fallback)",
		},
		[]string{"source"},
	)

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentdesk_proxy_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)
