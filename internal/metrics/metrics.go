package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "munazam_"

var (
	registerOnce sync.Once

	datagramsTotal  *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	alarmsTotal     *prometheus.CounterVec
	storeErrors     prometheus.Counter
	authQueueDrops  prometheus.Counter
	grantsIssued    prometheus.Counter
	grantsConsumed  prometheus.Counter
	devicesRegistry prometheus.Gauge
)

// Init registers gateway metrics with the default registry.  Safe to call
// more than once; only the first call registers.
func Init() {
	registerOnce.Do(func() {
		datagramsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "datagrams_total",
				Help: "Received datagrams by kind and result",
			},
			[]string{"kind", "result"},
		)
		decisionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "access_decisions_total",
				Help: "Access decisions by outcome and reason",
			},
			[]string{"decision", "reason"},
		)
		commandsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_sent_total",
				Help: "Command datagrams sent by result",
			},
			[]string{"result"},
		)
		alarmsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_transitions_total",
				Help: "Alarm state machine transitions by direction",
			},
			[]string{"transition"},
		)
		storeErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "reservation_store_errors_total",
			Help: "Reservation store failures observed during evaluation",
		})
		authQueueDrops = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "auth_queue_drops_total",
			Help: "Credential events dropped because the authorization queue was full",
		})
		grantsIssued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "one_time_grants_issued_total",
			Help: "One-time access grants issued by the expiry scheduler",
		})
		grantsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "one_time_grants_consumed_total",
			Help: "One-time access grants consumed by an unlock",
		})
		devicesRegistry = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "registered_devices",
			Help: "Devices currently present in the registry",
		})

		prometheus.MustRegister(
			datagramsTotal, decisionsTotal, commandsTotal, alarmsTotal,
			storeErrors, authQueueDrops, grantsIssued, grantsConsumed,
			devicesRegistry,
		)
	})
}

// The helpers below are no-ops until Init has run, so library code and tests
// can call them without registering collectors.

func Datagram(kind, result string) {
	if datagramsTotal != nil {
		datagramsTotal.WithLabelValues(kind, result).Inc()
	}
}

func Decision(decision, reason string) {
	if decisionsTotal != nil {
		decisionsTotal.WithLabelValues(decision, reason).Inc()
	}
}

func CommandSent(result string) {
	if commandsTotal != nil {
		commandsTotal.WithLabelValues(result).Inc()
	}
}

func AlarmTransition(transition string) {
	if alarmsTotal != nil {
		alarmsTotal.WithLabelValues(transition).Inc()
	}
}

func StoreError() {
	if storeErrors != nil {
		storeErrors.Inc()
	}
}

func AuthQueueDrop() {
	if authQueueDrops != nil {
		authQueueDrops.Inc()
	}
}

func GrantIssued() {
	if grantsIssued != nil {
		grantsIssued.Inc()
	}
}

func GrantConsumed() {
	if grantsConsumed != nil {
		grantsConsumed.Inc()
	}
}

func SetRegisteredDevices(n int) {
	if devicesRegistry != nil {
		devicesRegistry.Set(float64(n))
	}
}
