package middleware

import (
	"net"
	"net/http"
)

// TrustedSubnet пропускает только клиентов из доверенной подсети.
// Адрес клиента берётся из RemoteAddr, который подменяет только RealIP
// для запросов от доверенных прокси.
// Без подсети внутренние эндпоинты закрыты для всех.
func TrustedSubnet(subnet *net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(clientIP(r))
			if subnet == nil || ip == nil || !subnet.Contains(ip) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
