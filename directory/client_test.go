package directory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/matryer/is"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lugatuic/passwd-webui/config"
	"github.com/lugatuic/passwd-webui/directory"
	"github.com/lugatuic/passwd-webui/internal/ldaptest"
)

const (
	base   = "ou=People,dc=example,dc=org"
	jdoeDN = "uid=jdoe,ou=People,dc=example,dc=org"
)

func newFixture(t *testing.T) (*directory.Client, *ldaptest.Directory, *observer.ObservedLogs) {
	t.Helper()
	fake := ldaptest.New()
	fake.AddUser(jdoeDN, "s3cret-pass", map[string][]string{
		"uid":       {"jdoe"},
		"sn":        {"Doe"},
		"givenName": {"Jane"},
		"cn":        {"Jane Doe"},
		"mail":      {"jane@example.org", "jdoe@example.org"},
	})

	core, logs := observer.New(zap.DebugLevel)
	dial := func(ctx context.Context, url string) (directory.LDAPConn, error) {
		c, err := fake.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	client, err := directory.NewClient(&config.LDAPConfig{
		Host:         "ldap.example.org",
		Base:         base,
		SearchFilter: "(uid={uid})",
	}, zap.New(core), directory.WithDialer(dial))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, fake, logs
}

func TestNewClient(t *testing.T) {
	is := is.New(t)

	_, err := directory.NewClient(nil, nil)
	is.True(err != nil)

	_, err = directory.NewClient(&config.LDAPConfig{}, nil)
	is.True(err != nil)

	c, err := directory.NewClient(&config.LDAPConfig{Host: "dc1", UseSSL: true, Base: base}, nil)
	is.NoErr(err)
	is.Equal(c.URL(), "ldaps://dc1:636")
	is.Equal(c.BaseDN(), base)
}

func TestBindSearchAndClose(t *testing.T) {
	is := is.New(t)
	client, fake, _ := newFixture(t)
	ctx := context.Background()

	conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
	is.NoErr(err)
	is.NoErr(conn.Bind(ctx))

	attrs, err := conn.Search(ctx, base, client.SearchFilter("jdoe"), []string{"uid", "sn", "givenName", "cn", "mail"})
	is.NoErr(err)
	is.Equal(attrs.First("uid"), "jdoe")
	is.Equal(attrs.First("givenName"), "Jane")
	is.Equal(attrs["mail"], []string{"jane@example.org", "jdoe@example.org"})
	is.Equal(attrs.First("telephoneNumber"), "")

	is.NoErr(conn.Close())
	is.NoErr(conn.Close()) // second close is a no-op

	conns := fake.Conns()
	is.Equal(len(conns), 1)
	is.True(conns[0].Unbound())
	is.True(conns[0].Closed())
}

func TestBindFailures(t *testing.T) {
	t.Run("wrong password", func(t *testing.T) {
		is := is.New(t)
		client, fake, logs := newFixture(t)
		ctx := context.Background()

		conn, err := client.Connect(ctx, jdoeDN, "wrong")
		is.NoErr(err)
		err = conn.Bind(ctx)
		is.Equal(directory.KindOf(err), directory.KindAuth)
		is.Equal(err.Error(), "Username or password is incorrect!")
		is.NoErr(conn.Close())

		is.True(fake.Conns()[0].Closed())
		is.True(!fake.Conns()[0].Unbound())
		is.Equal(logs.FilterMessageSnippet("failed").Len(), 0) // credential failures are not errors
	})

	t.Run("empty dn", func(t *testing.T) {
		is := is.New(t)
		client, _, _ := newFixture(t)
		conn, err := client.Connect(context.Background(), "", "pw")
		is.NoErr(err)
		defer conn.Close()
		is.Equal(directory.KindOf(conn.Bind(context.Background())), directory.KindAuth)
	})

	t.Run("empty password", func(t *testing.T) {
		is := is.New(t)
		client, _, _ := newFixture(t)
		conn, err := client.Connect(context.Background(), jdoeDN, "")
		is.NoErr(err)
		defer conn.Close()
		is.Equal(directory.KindOf(conn.Bind(context.Background())), directory.KindAuth)
	})
}

func TestConnectFailureIsLogged(t *testing.T) {
	is := is.New(t)
	client, fake, logs := newFixture(t)
	fake.DialErr = ldap.NewError(ldap.ErrorNetwork, errors.New("dial tcp 10.0.0.1:389: connect: connection refused"))

	_, err := client.Connect(context.Background(), jdoeDN, "s3cret-pass")
	is.Equal(directory.KindOf(err), directory.KindConnect)
	is.Equal(err.Error(), "Unable to connect to the remote server.")

	entries := logs.FilterMessage("ldap dial failed").All()
	is.Equal(len(entries), 1)
	is.True(entries[0].ContextMap()["error"] != nil)
	is.True(errors.Is(err, fake.DialErr))
}

func TestSearchNotFound(t *testing.T) {
	is := is.New(t)
	client, _, _ := newFixture(t)
	ctx := context.Background()

	conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
	is.NoErr(err)
	defer conn.Close()
	is.NoErr(conn.Bind(ctx))

	_, err = conn.Search(ctx, base, client.SearchFilter("*)(uid=*"), []string{"uid"})
	is.Equal(directory.KindOf(err), directory.KindNotFound)
}

func TestModifyReplacesInOneRequest(t *testing.T) {
	is := is.New(t)
	client, fake, _ := newFixture(t)
	ctx := context.Background()

	conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
	is.NoErr(err)
	defer conn.Close()
	is.NoErr(conn.Bind(ctx))

	is.NoErr(conn.Modify(ctx, jdoeDN, []directory.Change{
		{Attribute: "sn", Values: []string{"Roe"}},
		{Attribute: "mail", Values: []string{"jane.roe@example.org"}},
	}))

	mods := fake.Modifies()
	is.Equal(len(mods), 1)
	is.Equal(len(mods[0].Changes), 2)
	is.Equal(mods[0].Changes[0].Operation, uint(ldap.ReplaceAttribute))

	e, _ := fake.Entry(jdoeDN)
	is.Equal(e.Attrs["sn"], []string{"Roe"})
	is.Equal(e.Attrs["mail"], []string{"jane.roe@example.org"})
}

func TestModifyProtocolErrorIsLogged(t *testing.T) {
	is := is.New(t)
	client, fake, logs := newFixture(t)
	ctx := context.Background()
	fake.ModifyErr = ldap.NewError(ldap.LDAPResultOther, errors.New("internal backend failure"))

	conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
	is.NoErr(err)
	defer conn.Close()
	is.NoErr(conn.Bind(ctx))

	err = conn.Modify(ctx, jdoeDN, []directory.Change{{Attribute: "sn", Values: []string{"X"}}})
	is.Equal(directory.KindOf(err), directory.KindProtocol)
	is.Equal(err.Error(), "Encountered an unexpected error while communicating with the remote server.")
	is.Equal(logs.FilterMessage("ldap modify failed").Len(), 1)
}

func TestChangePassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		is := is.New(t)
		client, fake, _ := newFixture(t)
		ctx := context.Background()

		conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
		is.NoErr(err)
		defer conn.Close()
		is.NoErr(conn.Bind(ctx))
		is.NoErr(conn.ChangePassword(ctx, jdoeDN, "s3cret-pass", "n3w-s3cret"))

		e, _ := fake.Entry(jdoeDN)
		is.Equal(e.Password, "n3w-s3cret")
	})

	t.Run("constraint violation", func(t *testing.T) {
		is := is.New(t)
		client, fake, logs := newFixture(t)
		ctx := context.Background()
		fake.PasswordModifyErr = ldap.NewError(ldap.LDAPResultConstraintViolation,
			errors.New("0000052D: Constraint violation - check_password_restrictions: the password does not meet the complexity criteria!"))

		conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
		is.NoErr(err)
		defer conn.Close()
		is.NoErr(conn.Bind(ctx))

		err = conn.ChangePassword(ctx, jdoeDN, "s3cret-pass", "weakweak")
		is.Equal(directory.KindOf(err), directory.KindConstraint)
		is.Equal(err.Error(), "The password does not meet the complexity criteria!")
		is.Equal(logs.Len(), 0)
	})
}

func TestDeadlineBecomesTimeout(t *testing.T) {
	is := is.New(t)
	client, fake, _ := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	conn, err := client.Connect(ctx, jdoeDN, "s3cret-pass")
	is.NoErr(err)
	defer conn.Close()

	got := fake.Conns()[0].Timeout()
	is.True(got > 0 && got <= time.Minute)
}

func TestPing(t *testing.T) {
	is := is.New(t)
	client, fake, _ := newFixture(t)

	is.NoErr(client.Ping(context.Background()))
	is.True(fake.Conns()[0].Closed())

	fake.DialErr = errors.New("no route to host")
	is.Equal(directory.KindOf(client.Ping(context.Background())), directory.KindConnect)
}
