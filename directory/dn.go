package directory

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-ldap/ldap/v3"
)

// escapeDNComponent escapes an attribute value for use inside a DN (RFC 4514).
func escapeDNComponent(s string) string {
	var builder strings.Builder
	for i, r := range s {
		if r == 0 {
			builder.WriteString(`\00`)
			continue
		}

		isSpecial := false
		switch r {
		case '\\', ',', '+', '"', '<', '>', ';', '=':
			isSpecial = true
		case '#':
			isSpecial = i == 0
		case ' ':
			isSpecial = i == 0 || i+utf8.RuneLen(r) == len(s)
		}

		if isSpecial {
			builder.WriteRune('\\')
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// UserDN returns the DN a user binds as: uid=<username>,<base>.
// An empty username is reported as bad credentials without touching the network.
func (c *Client) UserDN(username string) (string, error) {
	if username == "" {
		return "", NewError(KindAuth, fmt.Errorf("username is mandatory"))
	}
	return fmt.Sprintf("uid=%s,%s", escapeDNComponent(username), c.cfg.Base), nil
}

// SearchFilter fills the configured filter template with the RFC 4515 escaped username.
func (c *Client) SearchFilter(username string) string {
	return strings.ReplaceAll(c.cfg.SearchFilter, "{uid}", ldap.EscapeFilter(username))
}

// BaseDN is the search base for profile lookups.
func (c *Client) BaseDN() string {
	return c.cfg.Base
}
