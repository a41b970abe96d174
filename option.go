package l2cap

import (
	"io/ioutil"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const (
	DefaultConnectTimeout            = 20 * time.Second
	DefaultLinkIdleDisconnectTimeout = 20 * time.Second
	DefaultCommandTimeout            = 3 * time.Second
	DefaultConnectRetryMaxElapsed    = 5 * time.Second
)

// Params is the passive parameter source shared by the link manager and the
// controller adapter.
type Params struct {
	// ConnectTimeout bounds a single LE connection attempt.
	ConnectTimeout time.Duration
	// LinkIdleDisconnectTimeout is how long a link with no acquired fixed
	// channel stays up. Zero keeps idle links forever.
	LinkIdleDisconnectTimeout time.Duration
	// CommandTimeout bounds the wait for a Command Status/Complete event.
	CommandTimeout time.Duration
	// ConnectRetryMaxElapsed bounds retries of a create connection command
	// the controller rejected as busy.
	ConnectRetryMaxElapsed time.Duration

	Logger Logger
}

// DefaultParams returns the parameters used when no option overrides them.
func DefaultParams() Params {
	return Params{
		ConnectTimeout:            DefaultConnectTimeout,
		LinkIdleDisconnectTimeout: DefaultLinkIdleDisconnectTimeout,
		CommandTimeout:            DefaultCommandTimeout,
		ConnectRetryMaxElapsed:    DefaultConnectRetryMaxElapsed,
	}
}

// An Option is a configuration function, which configures the parameters.
type Option func(*Params) error

// NewParams applies opts on top of DefaultParams.
func NewParams(opts ...Option) (Params, error) {
	p := DefaultParams()
	for _, opt := range opts {
		if err := opt(&p); err != nil {
			return p, err
		}
	}
	if p.Logger == nil {
		p.Logger = GetLogger()
	}
	return p, nil
}

// OptConnectTimeout sets the per-attempt connection timeout.
func OptConnectTimeout(d time.Duration) Option {
	return func(p *Params) error {
		if d <= 0 {
			return errors.Errorf("invalid connect timeout %s", d)
		}
		p.ConnectTimeout = d
		return nil
	}
}

// OptLinkIdleTimeout sets the idle link disconnect timeout, 0 disables it.
func OptLinkIdleTimeout(d time.Duration) Option {
	return func(p *Params) error {
		if d < 0 {
			return errors.Errorf("invalid link idle timeout %s", d)
		}
		p.LinkIdleDisconnectTimeout = d
		return nil
	}
}

// OptCommandTimeout sets how long to wait for the controller to answer a command.
func OptCommandTimeout(d time.Duration) Option {
	return func(p *Params) error {
		if d <= 0 {
			return errors.Errorf("invalid command timeout %s", d)
		}
		p.CommandTimeout = d
		return nil
	}
}

// OptConnectRetryMaxElapsed bounds how long a create connection command
// rejected as busy is retried.
func OptConnectRetryMaxElapsed(d time.Duration) Option {
	return func(p *Params) error {
		if d < 0 {
			return errors.Errorf("invalid connect retry bound %s", d)
		}
		p.ConnectRetryMaxElapsed = d
		return nil
	}
}

// OptLogger sets the logger every component derives its logger from.
func OptLogger(l Logger) Option {
	return func(p *Params) error {
		p.Logger = l
		return nil
	}
}

// OptConfigFile loads parameters from a JSON file. Fields absent from the
// file keep their current value.
func OptConfigFile(path string) Option {
	return func(p *Params) error {
		return p.load(path)
	}
}

type paramsFile struct {
	ConnectTimeout            string `json:"connectTimeout"`
	LinkIdleDisconnectTimeout string `json:"linkIdleDisconnectTimeout"`
	CommandTimeout            string `json:"commandTimeout"`
	ConnectRetryMaxElapsed    string `json:"connectRetryMaxElapsed"`
}

func (p *Params) load(path string) error {
	in, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "can't read config file")
	}

	var f paramsFile
	if err := jsoniter.Unmarshal(in, &f); err != nil {
		return errors.Wrapf(err, "can't parse config file %s", path)
	}

	for _, v := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"connectTimeout", f.ConnectTimeout, &p.ConnectTimeout},
		{"linkIdleDisconnectTimeout", f.LinkIdleDisconnectTimeout, &p.LinkIdleDisconnectTimeout},
		{"commandTimeout", f.CommandTimeout, &p.CommandTimeout},
		{"connectRetryMaxElapsed", f.ConnectRetryMaxElapsed, &p.ConnectRetryMaxElapsed},
	} {
		if v.in == "" {
			continue
		}
		d, err := time.ParseDuration(v.in)
		if err != nil {
			return errors.Wrapf(err, "%s", v.name)
		}
		if d < 0 {
			return errors.Errorf("%s: negative duration %s", v.name, d)
		}
		*v.out = d
	}
	return nil
}
