// Package profile implements the self-service use cases: looking up the
// caller's own entry and changing their contact details or password.
// Every directory operation runs with the caller's credentials.
package profile

import (
	"context"

	"go.uber.org/zap"

	"github.com/lugatuic/passwd-webui/directory"
)

// Attributes requested on profile lookup.
var lookupAttributes = []string{"uid", "sn", "givenName", "cn", "mail"}

// Profile holds the first value of each looked-up attribute.
type Profile struct {
	UID        string `json:"uid"`
	Surname    string `json:"sn"`
	GivenName  string `json:"givenName"`
	CommonName string `json:"cn,omitempty"`
	Mail       string `json:"mail"`
}

// Update is the contact information a user may change.
type Update struct {
	Surname   string `json:"sn"`
	GivenName string `json:"givenName"`
	Mail      string `json:"mail"`
}

// CommonName is derived, never supplied by the user.
func (u Update) CommonName() string {
	return u.GivenName + " " + u.Surname
}

func (u Update) changes() []directory.Change {
	return []directory.Change{
		{Attribute: "sn", Values: []string{u.Surname}},
		{Attribute: "givenName", Values: []string{u.GivenName}},
		{Attribute: "cn", Values: []string{u.CommonName()}},
		{Attribute: "mail", Values: []string{u.Mail}},
	}
}

// UpdateRequest is one submission of the edit form.
type UpdateRequest struct {
	Username string `json:"username"`
	Update
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword,omitempty"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

// Service runs the profile use cases against one directory.
type Service struct {
	client *directory.Client
	logger *zap.Logger
}

func NewService(client *directory.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// Ping reports whether the directory is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// LoadProfile authenticates as username and returns their own entry.
func (s *Service) LoadProfile(ctx context.Context, username, password string) (*Profile, error) {
	p, err := s.loadProfile(ctx, username, password)
	if err != nil {
		if k := directory.KindOf(err); k == directory.KindAuth || k == directory.KindNotFound {
			err = directory.NewError(directory.KindAuth, err)
		}
		s.logger.Warn("Unsuccessful attempt to load info",
			zap.String("username", username),
			zap.String("kind", directory.KindOf(err).String()),
			zap.String("reason", directory.UserMessage(err)),
		)
		return nil, err
	}
	return p, nil
}

func (s *Service) loadProfile(ctx context.Context, username, password string) (*Profile, error) {
	dn, err := s.client.UserDN(username)
	if err != nil {
		return nil, err
	}

	conn, err := s.client.Connect(ctx, dn, password)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Bind(ctx); err != nil {
		return nil, err
	}
	attrs, err := conn.Search(ctx, s.client.BaseDN(), s.client.SearchFilter(username), lookupAttributes)
	if err != nil {
		return nil, err
	}

	return &Profile{
		UID:        attrs.First("uid"),
		Surname:    attrs.First("sn"),
		GivenName:  attrs.First("givenName"),
		CommonName: attrs.First("cn"),
		Mail:       attrs.First("mail"),
	}, nil
}

// UpdateProfile writes the contact details and, if requested, changes the
// password. The two steps use separate connections and are not atomic: when
// the password change fails the new contact details stay in place.
func (s *Service) UpdateProfile(ctx context.Context, req *UpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	s.logger.Info("Changing info", zap.String("username", req.Username))
	if err := s.updateProfile(ctx, req); err != nil {
		s.logger.Warn("Unsuccessful attempt to change info",
			zap.String("username", req.Username),
			zap.String("kind", directory.KindOf(err).String()),
			zap.String("reason", directory.UserMessage(err)),
		)
		return err
	}

	s.logger.Info("Information successfully changed", zap.String("username", req.Username))
	return nil
}

func (s *Service) updateProfile(ctx context.Context, req *UpdateRequest) error {
	dn, err := s.client.UserDN(req.Username)
	if err != nil {
		return err
	}
	if err := s.changeBaseInfo(ctx, dn, req.Update, req.OldPassword); err != nil {
		return err
	}
	if req.NewPassword != "" {
		return s.changePassword(ctx, dn, req.OldPassword, req.NewPassword)
	}
	return nil
}

func (s *Service) changeBaseInfo(ctx context.Context, dn string, u Update, password string) error {
	conn, err := s.client.Connect(ctx, dn, password)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Bind(ctx); err != nil {
		return err
	}
	return conn.Modify(ctx, dn, u.changes())
}

func (s *Service) changePassword(ctx context.Context, dn, oldPassword, newPassword string) error {
	conn, err := s.client.Connect(ctx, dn, oldPassword)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Bind(ctx); err != nil {
		return err
	}
	return conn.ChangePassword(ctx, dn, oldPassword, newPassword)
}
