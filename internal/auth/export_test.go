package auth

import (
	"context"
	"time"
)

// SetClock подменяет часы для проверки истечения токенов.
func (a *Auth) SetClock(now func() time.Time) {
	a.now = now
}

// FakeLDAP подменяет подключение к каталогу.
func (a *LDAPAuthenticator) FakeLDAP(conn LDAPConn, dialErr error) {
	a.dial = func(context.Context, LDAPConfig) (ldapConn, func(), error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return conn, func() {}, nil
	}
}

// LDAPConn экспортирует ldapConn для тестов.
type LDAPConn = ldapConn

// DialLDAP экспортирует реальное подключение к каталогу.
var DialLDAP = dialLDAP
