package server

import (
	"net"
	"net/http"
	"strings"
)

// callerIP
//
// Address of whoever posted the batch, for the request log line.
// POST /batch is called from inside the VPC (an SQS poller, an internal
// ALB), so private addresses are the normal case and are kept.
//
//  1. X-Forwarded-For: first parseable entry (the original client)
//  2. RemoteAddr
func callerIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := safeParseIP(part); ip != nil {
				return ip.String()
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := safeParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}
