package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP подставляет в RemoteAddr адрес клиента из X-Real-IP или
// X-Forwarded-For, но только если запрос пришёл от доверенного прокси.
// Заголовки остальных клиентов игнорируются.
func RealIP(trustedProxies []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := net.ParseIP(clientIP(r))
			if peer != nil && inAny(trustedProxies, peer) {
				if ip := forwardedFor(r, trustedProxies); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedFor берёт X-Real-IP, иначе самый правый адрес X-Forwarded-For,
// который не принадлежит доверенному прокси.
func forwardedFor(r *http.Request, trustedProxies []*net.IPNet) string {
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			return ""
		}
		if !inAny(trustedProxies, ip) {
			return ip.String()
		}
	}
	return ""
}

func inAny(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
