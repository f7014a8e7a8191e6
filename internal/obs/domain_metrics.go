package obs

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// CouponValidationTotal counts coupon evaluations by result code.
	CouponValidationTotal *prometheus.CounterVec
	// VIPLevelChangesTotal counts tier moves caused by spend accrual or reversal.
	VIPLevelChangesTotal *prometheus.CounterVec
	// OrderStatusTransitionsTotal counts admin status changes.
	OrderStatusTransitionsTotal *prometheus.CounterVec
	// EventPublishTotal counts domain event fan-out outcomes per notifier.
	EventPublishTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		CouponValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validation_total",
			Help:      "Count of coupon evaluations by result.",
		}, []string{"result"})
		VIPLevelChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vip_level_changes_total",
			Help:      "Count of VIP tier changes.",
		}, []string{"from", "to"})
		OrderStatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_transitions_total",
			Help:      "Count of order status transitions.",
		}, []string{"from", "to"})
		EventPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Count of domain event deliveries per notifier and outcome.",
		}, []string{"notifier", "result"})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, CouponValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponValidationTotal = v
			}
		})
		mustRegisterCollector(reg, VIPLevelChangesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VIPLevelChangesTotal = v
			}
		})
		mustRegisterCollector(reg, OrderStatusTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderStatusTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, EventPublishTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EventPublishTotal = v
			}
		})
	})
}

// ObserveCheckout records a checkout outcome when domain metrics are registered.
func ObserveCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCouponValidation records a coupon evaluation; accepted coupons are labelled "ok".
func ObserveCouponValidation(result string) {
	if CouponValidationTotal != nil {
		CouponValidationTotal.WithLabelValues(result).Inc()
	}
}

// ObserveVIPLevelChange records a tier move. Unchanged levels are ignored.
func ObserveVIPLevelChange(from, to int) {
	if VIPLevelChangesTotal != nil && from != to {
		VIPLevelChangesTotal.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to)).Inc()
	}
}

// ObserveOrderTransition records an order status change.
func ObserveOrderTransition(from, to string) {
	if OrderStatusTransitionsTotal != nil {
		OrderStatusTransitionsTotal.WithLabelValues(from, to).Inc()
	}
}

// ObserveEventPublish records the outcome of delivering an event to one notifier.
func ObserveEventPublish(notifier, result string) {
	if EventPublishTotal != nil {
		EventPublishTotal.WithLabelValues(notifier, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
