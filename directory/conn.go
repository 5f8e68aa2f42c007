package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Conn is one connection bound (or about to be bound) as a single DN.
// It is not safe for concurrent use and must be closed on every path.
type Conn struct {
	client   *Client
	conn     LDAPConn
	dn       string
	password string
	bound    bool
	closed   bool
}

func (s *Conn) applyDeadline(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		s.conn.SetTimeout(time.Until(dl))
	}
}

// Bind authenticates with the DN and password given to Connect.
func (s *Conn) Bind(ctx context.Context) error {
	if s.dn == "" {
		return NewError(KindAuth, fmt.Errorf("bind DN is mandatory"))
	}
	s.applyDeadline(ctx)
	if err := s.conn.Bind(s.dn, s.password); err != nil {
		return s.client.translate("bind", s.dn, err)
	}
	s.bound = true
	return nil
}

// Search runs a subtree search under baseDN and returns the first matching entry.
func (s *Conn) Search(ctx context.Context, baseDN, filter string, attributes []string) (Attributes, error) {
	s.applyDeadline(ctx)
	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		filter,
		attributes,
		nil,
	)

	sr, err := s.conn.Search(req)
	if err != nil {
		return nil, s.client.translate("search", s.dn, fmt.Errorf("ldap search failed: %w", err))
	}
	if len(sr.Entries) == 0 {
		return nil, NewError(KindNotFound, fmt.Errorf("no entries found for %s", filter))
	}
	if len(sr.Entries) > 1 {
		s.client.logger.Warn("ldap search matched more than one entry",
			zap.String("filter", filter),
			zap.Int("entries", len(sr.Entries)),
		)
	}
	return attributesFromEntry(sr.Entries[0], attributes), nil
}

// Modify replaces all given attributes of dn in a single request.
func (s *Conn) Modify(ctx context.Context, dn string, changes []Change) error {
	s.applyDeadline(ctx)
	req := ldap.NewModifyRequest(dn, nil)
	for _, ch := range changes {
		req.Replace(ch.Attribute, ch.Values)
	}
	if err := s.conn.Modify(req); err != nil {
		return s.client.translate("modify", dn, fmt.Errorf("ldap modify failed: %w", err))
	}
	return nil
}

// ChangePassword uses the password modify extended operation (RFC 3062).
func (s *Conn) ChangePassword(ctx context.Context, dn, oldPassword, newPassword string) error {
	s.applyDeadline(ctx)
	req := ldap.NewPasswordModifyRequest(dn, oldPassword, newPassword)
	if _, err := s.conn.PasswordModify(req); err != nil {
		return s.client.translate("passwd", dn, fmt.Errorf("ldap password modify failed: %w", err))
	}
	return nil
}

// Close unbinds if needed and closes the socket. Calling it twice is a no-op.
func (s *Conn) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.bound {
		if err := s.conn.Unbind(); err != nil {
			s.client.logger.Debug("ldap unbind failed", zap.Error(err), zap.String("dn", s.dn))
		}
	}
	return s.conn.Close()
}
