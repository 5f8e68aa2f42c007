// Package ldaptest provides an in-memory directory that speaks the go-ldap
// request types, for exercising the directory client without a server.
//
// Only the features the client needs are modelled: simple bind, subtree
// search with a single equality filter, replace modifications and the
// password modify extended operation.
package ldaptest

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

var equalityFilter = regexp.MustCompile(`^\(([A-Za-z][A-Za-z0-9-]*)=([^()*]*)\)$`)

// Entry is a stored directory entry.
type Entry struct {
	DN       string
	Password string
	Attrs    map[string][]string
}

// Directory is a fake directory server. Error fields, when set, are returned
// by the matching operation on every connection.
type Directory struct {
	mu      sync.Mutex
	entries map[string]*Entry

	DialErr           error
	SearchErr         error
	ModifyErr         error
	PasswordModifyErr error

	conns    []*Conn
	modifies []*ldap.ModifyRequest
}

func New() *Directory {
	return &Directory{entries: map[string]*Entry{}}
}

func key(dn string) string {
	return strings.ToLower(dn)
}

// AddUser stores an entry with a password usable for simple bind.
func (d *Directory) AddUser(dn, password string, attrs map[string][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key(dn)] = &Entry{DN: dn, Password: password, Attrs: copyAttrs(attrs)}
}

// Entry returns a copy of the entry stored at dn.
func (d *Directory) Entry(dn string) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key(dn)]
	if !ok {
		return Entry{}, false
	}
	return Entry{DN: e.DN, Password: e.Password, Attrs: copyAttrs(e.Attrs)}, true
}

// Dial opens a new fake connection.
func (d *Directory) Dial(_ context.Context, _ string) (*Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	c := &Conn{dir: d}
	d.conns = append(d.conns, c)
	return c, nil
}

// Conns returns every connection dialed so far.
func (d *Directory) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Modifies returns every modify request that was applied.
func (d *Directory) Modifies() []*ldap.ModifyRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*ldap.ModifyRequest(nil), d.modifies...)
}

// Conn is one fake connection.
type Conn struct {
	dir *Directory

	mu      sync.Mutex
	boundDN string
	timeout time.Duration
	unbound bool
	closed  bool
}

func (c *Conn) SetTimeout(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = t
}

// Timeout is the last value given to SetTimeout.
func (c *Conn) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Closed reports whether the connection was closed, directly or through Unbind.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Unbound reports whether Unbind was called.
func (c *Conn) Unbound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unbound
}

func (c *Conn) checkOpen() error {
	if c.closed {
		return ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))
	}
	return nil
}

func (c *Conn) Bind(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if password == "" {
		return ldap.NewError(ldap.ErrorEmptyPassword, errors.New("ldap: empty password not allowed by the client"))
	}

	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	e, ok := c.dir.entries[key(username)]
	if !ok || e.Password != password {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(""))
	}
	c.boundDN = e.DN
	return nil
}

func (c *Conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	if c.dir.SearchErr != nil {
		return nil, c.dir.SearchErr
	}

	m := equalityFilter.FindStringSubmatch(req.Filter)
	if m == nil {
		return nil, ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("unsupported filter "+req.Filter))
	}
	attr, want := m[1], m[2]

	base := key(req.BaseDN)
	result := &ldap.SearchResult{}
	for k, e := range c.dir.entries {
		if k != base && !strings.HasSuffix(k, ","+base) {
			continue
		}
		if !matches(e, attr, want) {
			continue
		}
		result.Entries = append(result.Entries, ldap.NewEntry(e.DN, selectAttrs(e.Attrs, req.Attributes)))
	}
	return result, nil
}

// matches compares in escaped form so an escaped filter value can never act
// as a wildcard or close the filter early.
func matches(e *Entry, attr, want string) bool {
	for name, vals := range e.Attrs {
		if !strings.EqualFold(name, attr) {
			continue
		}
		for _, v := range vals {
			if strings.EqualFold(ldap.EscapeFilter(v), want) {
				return true
			}
		}
	}
	return false
}

func (c *Conn) Modify(req *ldap.ModifyRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	if c.dir.ModifyErr != nil {
		return c.dir.ModifyErr
	}
	if !strings.EqualFold(c.boundDN, req.DN) {
		return ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("no write access to "+req.DN))
	}
	e, ok := c.dir.entries[key(req.DN)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New(""))
	}
	for _, ch := range req.Changes {
		if ch.Operation != ldap.ReplaceAttribute {
			return ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("only replace is supported"))
		}
	}
	for _, ch := range req.Changes {
		e.Attrs[ch.Modification.Type] = append([]string(nil), ch.Modification.Vals...)
	}
	c.dir.modifies = append(c.dir.modifies, req)
	return nil
}

func (c *Conn) PasswordModify(req *ldap.PasswordModifyRequest) (*ldap.PasswordModifyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	if c.dir.PasswordModifyErr != nil {
		return nil, c.dir.PasswordModifyErr
	}
	if !strings.EqualFold(c.boundDN, req.UserIdentity) {
		return nil, ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("not bound as "+req.UserIdentity))
	}
	e := c.dir.entries[key(req.UserIdentity)]
	if e == nil || e.Password != req.OldPassword {
		return nil, ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(""))
	}
	e.Password = req.NewPassword
	return &ldap.PasswordModifyResult{}, nil
}

func (c *Conn) Unbind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.unbound = true
	c.closed = true
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func selectAttrs(attrs map[string][]string, names []string) map[string][]string {
	if len(names) == 0 {
		return copyAttrs(attrs)
	}
	out := map[string][]string{}
	for _, n := range names {
		for name, vals := range attrs {
			if strings.EqualFold(name, n) {
				out[name] = append([]string(nil), vals...)
			}
		}
	}
	return out
}

func copyAttrs(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		out[k] = append([]string(nil), v...)
	}
	return out
}
