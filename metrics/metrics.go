// Package metrics holds the Prometheus collectors updated by the device and
// agent packages. They are registered with the default registry.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FDRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pldm_fd_requests_total",
			Help: "Number of requests answered by the firmware device, by command and completion code",
		},
		[]string{"command", "completion_code"},
	)

	FDStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pldm_fd_state_transitions_total",
			Help: "Number of firmware device state transitions",
		},
		[]string{"from", "to"},
	)

	FDDownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pldm_fd_download_bytes_total",
			Help: "Number of component image bytes received by the firmware device",
		},
	)

	FDRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pldm_fd_retries_total",
			Help: "Number of initiator requests retransmitted by the firmware device",
		},
	)

	FDDroppedResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pldm_fd_dropped_responses_total",
			Help: "Number of responses dropped by the firmware device because they matched no outstanding request",
		},
	)

	UAUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pldm_ua_updates_total",
			Help: "Number of update sessions finished by the update agent, by result",
		},
		[]string{"result"},
	)

	UAServedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pldm_ua_served_bytes_total",
			Help: "Number of component image bytes served by the update agent",
		},
	)

	UADroppedMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pldm_ua_dropped_messages_total",
			Help: "Number of messages dropped by the update agent",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FDRequestsTotal,
		FDStateTransitionsTotal,
		FDDownloadBytesTotal,
		FDRetriesTotal,
		FDDroppedResponsesTotal,
		UAUpdatesTotal,
		UAServedBytesTotal,
		UADroppedMessagesTotal,
	)
}

// Update results reported in pldm_ua_updates_total.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultNothingToDo = "nothing_to_update"
	ResultCancelled   = "cancelled"
)

// CodeLabel formats a completion code for the completion_code label.
func CodeLabel(cc uint8) string {
	return fmt.Sprintf("0x%02X", cc)
}
