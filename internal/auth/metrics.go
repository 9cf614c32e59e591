// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts auth outcomes. A nil *Metrics records nothing.
type Metrics struct {
	OtpRequests      *prometheus.CounterVec
	OtpVerifications *prometheus.CounterVec
	Logins           *prometheus.CounterVec
	Rotations        *prometheus.CounterVec
	ReuseDetected    prometheus.Counter
	MailFailures     prometheus.Counter
}

// NewMetrics creates and registers the auth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OtpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_otp_requests_total",
				Help: "OTP issue requests by result",
			},
			[]string{"result"},
		),
		OtpVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_otp_verifications_total",
				Help: "OTP verification attempts by result",
			},
			[]string{"result"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_logins_total",
				Help: "Password logins by result",
			},
			[]string{"result"},
		),
		Rotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_refresh_rotations_total",
				Help: "Refresh token rotations by result",
			},
			[]string{"result"},
		),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_refresh_reuse_detected_total",
			Help: "Rotated refresh tokens presented again",
		}),
		MailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_otp_mail_failures_total",
			Help: "OTP mails that could not be dispatched after commit",
		}),
	}

	reg.MustRegister(m.OtpRequests, m.OtpVerifications, m.Logins, m.Rotations, m.ReuseDetected, m.MailFailures)
	return m
}

// resultLabel turns an outcome into a bounded label value.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := ErrorCode(err); code != "" {
		if _, known := codeKinds[code]; known {
			return strings.ToLower(code)
		}
	}
	return "error"
}

func (m *Metrics) otpRequest(err error) {
	if m != nil {
		m.OtpRequests.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) otpVerify(err error) {
	if m != nil {
		m.OtpVerifications.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) login(err error) {
	if m != nil {
		m.Logins.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) rotation(err error) {
	if m != nil {
		m.Rotations.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) reuse() {
	if m != nil {
		m.ReuseDetected.Inc()
	}
}

func (m *Metrics) mailFailure() {
	if m != nil {
		m.MailFailures.Inc()
	}
}
