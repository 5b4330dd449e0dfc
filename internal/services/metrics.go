package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promptsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadbot_prompts_sent_total",
			Help: "Prompt messages delivered, labeled by slot and prompt source.",
		},
		[]string{"slot", "source"},
	)

	sendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadbot_send_failures_total",
			Help: "Delivery attempts that did not result in a sent message.",
		},
		[]string{"kind"},
	)

	webhookUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadbot_webhook_updates_total",
			Help: "Inbound chat updates processed, labeled by classification.",
		},
		[]string{"kind"},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadbot_verifications_total",
			Help: "Verification attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		promptsSentTotal,
		sendFailuresTotal,
		webhookUpdatesTotal,
		verificationsTotal,
	)
}
