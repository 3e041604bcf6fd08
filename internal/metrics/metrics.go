// Package metrics expone contadores Prometheus de los flujos de
// autenticación y rate limiting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	logins      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	blocks      *prometheus.CounterVec
	tokenChecks *prometheus.CounterVec
}

// New registra los contadores en el registry dado (nil = registry default).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_logins_total",
			Help: "Intentos de login por resultado (success o código de error).",
		}, []string{"result"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_rate_limited_total",
			Help: "Requests rechazados por la ventana deslizante, por scope.",
		}, []string{"scope"}),
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_lockouts_total",
			Help: "Bloqueos escalados creados, por tipo de key (ip|user).",
		}, []string{"kind"}),
		tokenChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_token_validations_total",
			Help: "Validaciones de tokens por resultado.",
		}, []string{"result"}),
	}
}

// Todos los métodos son nil-safe: un *Metrics nil no registra nada.

func (m *Metrics) Login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RateLimited(scope string) {
	if m != nil {
		m.rateLimited.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) Lockout(kind string) {
	if m != nil {
		m.blocks.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) TokenValidation(result string) {
	if m != nil {
		m.tokenChecks.WithLabelValues(result).Inc()
	}
}
