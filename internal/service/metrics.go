package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeError   = "error"
)

var (
	loginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_login_total",
			Help: "Login attempts by credential source and outcome",
		},
		[]string{"source", "outcome"},
	)

	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_refresh_total",
			Help: "Refresh token rotations by outcome",
		},
		[]string{"outcome"},
	)
)
