package directory

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/matryer/is"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
		want Kind
	}{
		{"invalid credentials", "bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("")), KindAuth},
		{"empty password", "bind", ldap.NewError(ldap.ErrorEmptyPassword, errors.New("empty")), KindAuth},
		{"bad dn on bind", "bind", ldap.NewError(ldap.LDAPResultInvalidDNSyntax, errors.New("")), KindAuth},
		{"unknown dn on bind", "bind", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("")), KindAuth},
		{"other bind failure", "bind", ldap.NewError(ldap.LDAPResultOperationsError, errors.New("")), KindProtocol},
		{"network", "search", ldap.NewError(ldap.ErrorNetwork, errors.New("reset")), KindConnect},
		{"any dial failure", "dial", errors.New("lookup failed"), KindConnect},
		{"net error", "modify", &net.OpError{Op: "read", Err: errors.New("broken pipe")}, KindConnect},
		{"missing base", "search", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("")), KindNotFound},
		{"constraint", "passwd", ldap.NewError(ldap.LDAPResultConstraintViolation, errors.New("too short")), KindConstraint},
		{"wrapped constraint", "modify", fmt.Errorf("ldap modify failed: %w", ldap.NewError(ldap.LDAPResultConstraintViolation, errors.New("x"))), KindConstraint},
		{"access denied on modify", "modify", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("")), KindProtocol},
		{"plain error", "modify", errors.New("boom"), KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(classify(tt.op, tt.err), tt.want)
		})
	}
}

func TestCleanConstraintMessage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			"0000052D: Constraint violation - check_password_restrictions: the password is too short. It should be equal or longer than 7 characters!",
			"The password is too short. It should be equal or longer than 7 characters!",
		},
		{"password fails quality checking policy", "Password fails quality checking policy"},
		{"  ", "Constraint violation"},
		{"check_password_restrictions: a: check_password_restrictions: étrange", "Étrange"},
	}
	for _, tt := range tests {
		is := is.New(t)
		is.Equal(cleanConstraintMessage(tt.in), tt.want)
	}
}

func TestConstraintMessageUsesServerDiagnostic(t *testing.T) {
	is := is.New(t)
	err := fmt.Errorf("ldap password modify failed: %w",
		ldap.NewError(ldap.LDAPResultConstraintViolation, errors.New("check_password_restrictions: the password was already used")))
	is.Equal(constraintMessage(err), "The password was already used")
}

func TestErrorHelpers(t *testing.T) {
	is := is.New(t)

	cause := errors.New("diagnostic detail")
	err := fmt.Errorf("wrapped: %w", NewError(KindConnect, cause))
	is.Equal(KindOf(err), KindConnect)
	is.Equal(UserMessage(err), MsgConnect)
	is.True(errors.Is(err, cause))

	is.Equal(KindOf(errors.New("plain")), KindUnknown)
	is.Equal(UserMessage(errors.New("secret internals")), MsgProtocol)

	v := Validation("Password is required!")
	is.Equal(v.Error(), "Password is required!")
	is.Equal(KindOf(v), KindValidation)
	is.Equal(NewError(KindNotFound, nil).Message, MsgBadCredentials)
	is.Equal(KindNotFound.String(), "not_found")
}
