package handler

import (
	"net/http"
	"strings"

	"mogeeb/services/relay/internal/domain"
)

// StatusPolicy decides the HTTP status of a chat reply.
type StatusPolicy string

const (
	// PolicyPinned answers 200 for every relay outcome so the widget always
	// has a body to render.
	PolicyPinned StatusPolicy = "pinned"
	// PolicyPropagate surfaces the failure class in the status code.
	PolicyPropagate StatusPolicy = "propagate"
)

func ParseStatusPolicy(s string) StatusPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyPropagate)) {
		return PolicyPropagate
	}
	return PolicyPinned
}

func (p StatusPolicy) StatusFor(res domain.ChatResult) int {
	if res.Kind == domain.KindValidation {
		return http.StatusBadRequest
	}
	if p != PolicyPropagate {
		return http.StatusOK
	}

	switch res.Kind {
	case domain.KindNone, domain.KindParse:
		return http.StatusOK
	case domain.KindTimeout:
		return http.StatusRequestTimeout
	case domain.KindConnection:
		return http.StatusServiceUnavailable
	case domain.KindUpstreamHTTP:
		if res.UpstreamStatus >= 400 && res.UpstreamStatus < 500 {
			return res.UpstreamStatus
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
