package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillingCreatedTotal counts committed billing records.
	BillingCreatedTotal prometheus.Counter
	// BillingRevenueTotal accumulates the total price of committed billing records.
	BillingRevenueTotal prometheus.Counter
	// BillingFailuresTotal counts rejected or failed billing attempts by reason.
	BillingFailuresTotal *prometheus.CounterVec
	// BillingRetriesTotal counts transaction retries after deadlock or serialization failures.
	BillingRetriesTotal prometheus.Counter
	// LoginTotal counts login attempts by result.
	LoginTotal *prometheus.CounterVec
	// OTPIssuedTotal counts password-reset codes issued.
	OTPIssuedTotal prometheus.Counter
	// MailSentTotal counts worker email deliveries by result.
	MailSentTotal *prometheus.CounterVec
)

func init() {
	// Usable before MustRegisterDomainMetrics so packages and tests can record unconditionally.
	initDomainCollectors("pos")
}

func initDomainCollectors(namespace string) {
	BillingCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_created_total",
		Help:      "Number of billing records committed.",
	})
	BillingRevenueTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_revenue_total",
		Help:      "Sum of total price over committed billing records.",
	})
	BillingFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_failures_total",
		Help:      "Billing attempts that did not commit, by reason.",
	}, []string{"reason"})
	BillingRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_tx_retries_total",
		Help:      "Billing transactions retried after a transient conflict.",
	})
	LoginTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})
	OTPIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "otp_issued_total",
		Help:      "Password reset codes issued.",
	})
	MailSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_sent_total",
		Help:      "Email deliveries attempted by the worker, by result.",
	}, []string{"result"})
}

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if namespace != "" && namespace != "pos" {
			initDomainCollectors(namespace)
		}
		BillingCreatedTotal = register(reg, BillingCreatedTotal)
		BillingRevenueTotal = register(reg, BillingRevenueTotal)
		BillingFailuresTotal = register(reg, BillingFailuresTotal)
		BillingRetriesTotal = register(reg, BillingRetriesTotal)
		LoginTotal = register(reg, LoginTotal)
		OTPIssuedTotal = register(reg, OTPIssuedTotal)
		MailSentTotal = register(reg, MailSentTotal)
	})
}
