package rbac

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeDisabled = "disabled"
	outcomeAdmin    = "admin"
	outcomeAllowed  = "allowed"
	outcomeDenied   = "denied"
	outcomeError    = "error"
)

var rbacDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_rbac_decisions_total",
		Help: "Permission evaluator decisions by outcome",
	},
	[]string{"outcome"},
)
