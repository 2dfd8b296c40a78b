package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// LDAPConfig параметры подключения к каталогу.
type LDAPConfig struct {
	URL           string
	BaseDN        string
	BindDN        string
	BindPassword  string
	UserFilter    string // например "(uid=%s)"
	UserAttribute string
	Timeout       time.Duration
}

// ldapConn подмножество *ldap.Conn, нужное аутентификатору.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

type ldapDialer func(ctx context.Context, cfg LDAPConfig) (ldapConn, func(), error)

// LDAPAuthenticator ищет пользователя в каталоге и проверяет пароль bind'ом.
type LDAPAuthenticator struct {
	cfg    LDAPConfig
	dial   ldapDialer
	logger *zap.Logger
}

func NewLDAPAuthenticator(cfg LDAPConfig, logger *zap.Logger) *LDAPAuthenticator {
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(uid=%s)"
	}
	if cfg.UserAttribute == "" {
		cfg.UserAttribute = "uid"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &LDAPAuthenticator{cfg: cfg, dial: dialLDAP, logger: logger}
}

// dialLDAP подключается к каталогу. Отмена ctx прерывает и установку
// соединения, и уже начатые операции.
func dialLDAP(ctx context.Context, cfg LDAPConfig) (ldapConn, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(cfg.URL, ldap.DialWithDialer(dialer))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}
	conn.SetTimeout(cfg.Timeout)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return conn, func() {
		stop()
		conn.Close()
	}, nil
}

func (a *LDAPAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	username := strings.TrimSpace(creds.Username)
	// пустой пароль превращает bind в анонимный
	if username == "" || creds.Password == "" {
		return "", ErrUnauthorized
	}

	conn, closeConn, err := a.dial(ctx, a.cfg)
	if err != nil {
		a.logger.Error("ldap dial failed", zap.String("url", a.cfg.URL), zap.Error(err))
		return "", fmt.Errorf("failed to connect to ldap: %w", err)
	}
	defer closeConn()

	if a.cfg.BindDN != "" {
		if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			a.logger.Error("ldap service bind failed", zap.String("bind_dn", a.cfg.BindDN), zap.Error(err))
			return "", fmt.Errorf("failed to bind service account: %w", err)
		}
	}

	req := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, int(a.cfg.Timeout.Seconds()), false,
		fmt.Sprintf(a.cfg.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", a.cfg.UserAttribute},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && ldapErr.ResultCode == ldap.LDAPResultNoSuchObject {
			return "", ErrUnauthorized
		}
		if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
			a.logger.Info("ldap filter matched several users", zap.String("username", username))
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("ldap search failed: %w", err)
	}
	if len(res.Entries) != 1 {
		a.logger.Info("ldap user not found or ambiguous", zap.String("username", username), zap.Int("entries", len(res.Entries)))
		return "", ErrUnauthorized
	}

	entry := res.Entries[0]
	if err := conn.Bind(entry.DN, creds.Password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("ldap bind failed: %w", err)
	}

	if user := entry.GetAttributeValue(a.cfg.UserAttribute); user != "" {
		return user, nil
	}
	return username, nil
}
