package directory

import (
	"errors"
	"net"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Kind classifies a directory failure into something the user can be told about.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindConstraint
	KindConnect
	KindProtocol
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConstraint:
		return "constraint"
	case KindConnect:
		return "connect"
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

const (
	MsgBadCredentials = "Username or password is incorrect!"
	MsgConnect        = "Unable to connect to the remote server."
	MsgProtocol       = "Encountered an unexpected error while communicating with the remote server."
)

// Samba 4 / AD prefix their password policy diagnostics with this marker.
const passwordRestrictionsMarker = "check_password_restrictions: "

// Error carries a user-safe message. The cause is kept for logging and errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind with the standard message for that kind.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: defaultMessage(kind), Err: cause}
}

// Validation returns a KindValidation error with a literal message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func defaultMessage(k Kind) string {
	switch k {
	case KindAuth, KindNotFound:
		return MsgBadCredentials
	case KindConnect:
		return MsgConnect
	default:
		return MsgProtocol
	}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// UserMessage returns the text that may be shown to the end user for err.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return MsgProtocol
}

// bindFailureCodes are bind results that must look like a plain credential
// failure so the response does not disclose whether the account exists.
var bindFailureCodes = []uint16{
	ldap.LDAPResultInvalidCredentials,
	ldap.LDAPResultInvalidDNSyntax,
	ldap.LDAPResultNoSuchObject,
	ldap.LDAPResultInappropriateAuthentication,
	ldap.LDAPResultUnwillingToPerform,
	ldap.ErrorEmptyPassword,
}

// classify maps a go-ldap error to a Kind. op is one of the operation names
// used in log fields ("dial", "bind", "search", "modify", "passwd").
func classify(op string, err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if op == "dial" || isNetworkError(err) {
		return KindConnect
	}
	if hasResultCode(err, ldap.LDAPResultInvalidCredentials) {
		return KindAuth
	}
	if op == "bind" {
		for _, code := range bindFailureCodes {
			if hasResultCode(err, code) {
				return KindAuth
			}
		}
	}
	if op == "search" && hasResultCode(err, ldap.LDAPResultNoSuchObject) {
		return KindNotFound
	}
	if hasResultCode(err, ldap.LDAPResultConstraintViolation) {
		return KindConstraint
	}
	return KindProtocol
}

// hasResultCode is ldap.IsErrorWithCode that also looks through wrapped errors.
func hasResultCode(err error, code uint16) bool {
	var le *ldap.Error
	return errors.As(err, &le) && le.ResultCode == code
}

func isNetworkError(err error) bool {
	if hasResultCode(err, ldap.ErrorNetwork) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// translate wraps err into an *Error. Connection and protocol failures are
// logged with their diagnostic here, since the message returned is generic.
func (c *Client) translate(op, dn string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	kind := classify(op, err)
	switch kind {
	case KindConstraint:
		return &Error{Kind: kind, Message: constraintMessage(err), Err: err}
	case KindConnect, KindProtocol:
		c.logger.Error("ldap "+op+" failed",
			zap.Error(err),
			zap.String("kind", kind.String()),
			zap.String("dn", dn),
		)
	}
	return NewError(kind, err)
}

// constraintMessage extracts the server explanation from a constraint
// violation, dropping any diagnostic prefix and capitalizing the first letter.
func constraintMessage(err error) string {
	var le *ldap.Error
	if errors.As(err, &le) && le.Err != nil {
		return cleanConstraintMessage(le.Err.Error())
	}
	return cleanConstraintMessage(err.Error())
}

func cleanConstraintMessage(msg string) string {
	if i := strings.LastIndex(msg, passwordRestrictionsMarker); i >= 0 {
		msg = msg[i+len(passwordRestrictionsMarker):]
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "Constraint violation"
	}
	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}
