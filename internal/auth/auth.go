// Package auth refreshes and discards the session credential.
package auth

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/credential"
	"github.com/xenking/orderdesk/internal/transport"
)

// ErrNoRefreshToken is returned by RefreshToken when the store holds no
// refresh token.
var ErrNoRefreshToken = errors.New("no refresh token")

// Refresher is the collaborator the order repository calls when the backend
// rejects the current credential.
type Refresher interface {
	// RefreshToken obtains a new bearer token. An empty token means the
	// refresh did not succeed.
	RefreshToken(ctx context.Context) (string, error)
	// Logout discards the credential.
	Logout(ctx context.Context) error
}

// Doer executes backend requests.
type Doer interface {
	Do(ctx context.Context, method, path string, opts ...transport.Option) (*transport.Response, error)
}

// Service implements Refresher against the backend's auth endpoints.
type Service struct {
	client Doer
	store  credential.Store
	prefix string
	lg     *zap.Logger
}

// NewService creates a Service. prefix is the auth path prefix, usually
// transport.DefaultAuthPrefix.
func NewService(client Doer, store credential.Store, prefix string, lg *zap.Logger) *Service {
	if prefix == "" {
		prefix = transport.DefaultAuthPrefix
	}
	return &Service{
		client: client,
		store:  store,
		prefix: prefix,
		lg:     lg,
	}
}

var _ Refresher = (*Service)(nil)

// RefreshToken exchanges the stored refresh token for a new bearer token and
// saves it.
func (s *Service) RefreshToken(ctx context.Context) (string, error) {
	creds, err := s.store.Load(ctx)
	if err != nil {
		return "", errors.Wrap(err, "load credentials")
	}
	if creds.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("refreshToken")
	e.Str(creds.RefreshToken)
	e.ObjEnd()

	resp, err := s.client.Do(ctx, http.MethodPost, s.prefix+"/refresh", transport.JSON(e.Bytes()))
	if err != nil {
		return "", errors.Wrap(err, "refresh")
	}

	token, refresh, err := decodeTokens(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "decode refresh response")
	}
	if token == "" {
		return "", nil
	}

	creds.Token = token
	if refresh != "" {
		creds.RefreshToken = refresh
	}
	if err := s.store.Save(ctx, creds); err != nil {
		return "", errors.Wrap(err, "save credentials")
	}
	s.lg.Info("Token refreshed")
	return token, nil
}

// Logout clears the credential store.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear credentials")
	}
	s.lg.Info("Logged out")
	return nil
}

func decodeTokens(data []byte) (token, refresh string, _ error) {
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "token":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "token")
			}
			token = v
		case "refreshToken":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "refreshToken")
			}
			refresh = v
		default:
			return d.Skip()
		}
		return nil
	})
	return token, refresh, err
}
