package provider

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Destination is one configured remote backup target. The set of
// implementations is closed: ObjectStorage and RemoteFilesystem.
type Destination interface {
	// DestinationName returns the configured, unique name of the target.
	DestinationName() string
	// DefaultPrefix is the remote prefix used when none is given.
	DefaultPrefix() string
	// Validate checks the fields needed to open a session.
	Validate() error

	isDestination()
}

// ObjectStorage is a bucket-addressed S3 or S3-compatible target.
type ObjectStorage struct {
	Name      string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	// Endpoint overrides the regional AWS endpoint for S3-compatible services.
	Endpoint    string
	DefaultPath string
}

// RemoteFilesystem is a path-addressed target reached over SFTP.
type RemoteFilesystem struct {
	Name     string
	Username string
	Password string
	Host     string
	Port     int
	// KnownHosts is an optional known_hosts file used to verify the host key.
	KnownHosts  string
	DefaultPath string
}

var (
	_ Destination = ObjectStorage{}
	_ Destination = RemoteFilesystem{}
)

// awsRegion matches standard region names such as us-east-1 or us-gov-west-1.
var awsRegion = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-[0-9]+$`)

func (d ObjectStorage) DestinationName() string { return d.Name }
func (d ObjectStorage) DefaultPrefix() string   { return d.DefaultPath }
func (ObjectStorage) isDestination()            {}

func (d ObjectStorage) Validate() error {
	var errs *multierror.Error
	if d.Bucket == "" {
		errs = multierror.Append(errs, errors.New("bucket is required"))
	}
	if d.AccessKey == "" || d.SecretKey == "" {
		errs = multierror.Append(errs, errors.New("access_key and secret_key are required"))
	}
	switch {
	case d.Region == "":
		errs = multierror.Append(errs, errors.New("region is required"))
	case strings.ContainsAny(d.Region, " \t\n/"):
		errs = multierror.Append(errs, fmt.Errorf("region %q is malformed", d.Region))
	case d.Endpoint == "" && !awsRegion.MatchString(d.Region):
		// with an endpoint override the region is only a signing name
		errs = multierror.Append(errs, fmt.Errorf("region %q is not a valid AWS region", d.Region))
	}
	if d.Endpoint != "" {
		u, err := url.Parse(d.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("endpoint %q must be an http(s) URL", d.Endpoint))
		}
	}
	return problems(errs)
}

func (d RemoteFilesystem) DestinationName() string { return d.Name }
func (d RemoteFilesystem) DefaultPrefix() string   { return d.DefaultPath }
func (RemoteFilesystem) isDestination()            {}

func (d RemoteFilesystem) Validate() error {
	var errs *multierror.Error
	if d.Host == "" {
		errs = multierror.Append(errs, errors.New("server is required"))
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = multierror.Append(errs, fmt.Errorf("port %d out of range", d.Port))
	}
	if d.Username == "" {
		errs = multierror.Append(errs, errors.New("username is required"))
	}
	return problems(errs)
}

// problems renders validation failures on one line, as they end up nested in
// config and transfer errors.
func problems(errs *multierror.Error) error {
	if errs == nil {
		return nil
	}
	errs.ErrorFormat = func(es []error) string {
		msgs := make([]string, len(es))
		for i, e := range es {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return errs.ErrorOrNil()
}
