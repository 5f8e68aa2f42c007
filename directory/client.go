package directory

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/lugatuic/passwd-webui/config"
)

// ConnectTimeout bounds establishing the connection to the directory server.
const ConnectTimeout = 5 * time.Second

// LDAPConn is the part of *ldap.Conn the client uses.
type LDAPConn interface {
	SetTimeout(time.Duration)
	Bind(username, password string) error
	Search(*ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(*ldap.ModifyRequest) error
	PasswordModify(*ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error)
	Unbind() error
	Close() error
}

// DialFunc opens a connection to url without authenticating.
type DialFunc func(ctx context.Context, url string) (LDAPConn, error)

type Option func(*Client)

// WithDialer replaces the network dialer, mainly for tests.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// Client holds the directory settings. It keeps no connection: every
// Connect dials a fresh one, so a Client is safe for concurrent use.
type Client struct {
	cfg    *config.LDAPConfig
	url    string
	logger *zap.Logger
	dial   DialFunc
}

// NewClient prepares a Client (but does not connect yet).
func NewClient(cfg *config.LDAPConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil ldap config")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("ldap host must be set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:    cfg,
		url:    serverURL(cfg),
		logger: logger,
		dial:   dialURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL is the ldap:// or ldaps:// address the client dials.
func (c *Client) URL() string {
	return c.url
}

func serverURL(cfg *config.LDAPConfig) string {
	scheme, port := "ldap", ldap.DefaultLdapPort
	if cfg.UseSSL {
		scheme, port = "ldaps", ldap.DefaultLdapsPort
	}
	if cfg.Port > 0 {
		port = strconv.Itoa(cfg.Port)
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(cfg.Host, port))
}

// netConn adapts *ldap.Conn to LDAPConn.
type netConn struct {
	*ldap.Conn
}

func (c netConn) Close() error {
	c.Conn.Close()
	return nil
}

// TLS uses the library defaults: system roots, server name taken from the URL.
func dialURL(_ context.Context, url string) (LDAPConn, error) {
	dialer := &net.Dialer{Timeout: ConnectTimeout}
	conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	return netConn{conn}, nil
}

// Connect opens a connection that will bind as dn. The caller must Close it.
func (c *Client) Connect(ctx context.Context, dn, password string) (*Conn, error) {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return nil, c.translate("dial", dn, fmt.Errorf("failed to dial %s: %w", c.url, err))
	}
	s := &Conn{client: c, conn: conn, dn: dn, password: password}
	s.applyDeadline(ctx)
	return s, nil
}

// Ping checks the directory server accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.Connect(ctx, "", "")
	if err != nil {
		return err
	}
	return conn.Close()
}
