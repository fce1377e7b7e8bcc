package sources

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/git"
	"github.com/civicportal/portal-sync/internal/model"
)

// Factory creates connectors for a folder's source type
type Factory interface {
	// Create returns a connector for the tenant and source type using the given configuration snapshot
	Create(ctx context.Context, cfg *config.Config, tenant *model.Tenant, source string) (Connector, error)
}

// FactoryOption configures the default factory
type FactoryOption func(*defaultFactory)

// WithClientOptions appends Google API client options to every Google connector.
// Used to point connectors at test servers.
func WithClientOptions(opts ...option.ClientOption) FactoryOption {
	return func(f *defaultFactory) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// WithGitClient replaces the go-git client used by git connectors
func WithGitClient(client git.Client) FactoryOption {
	return func(f *defaultFactory) {
		f.gitClient = client
	}
}

// defaultFactory is the default implementation of Factory
type defaultFactory struct {
	clientOpts []option.ClientOption
	gitClient  git.Client
}

var _ Factory = (*defaultFactory)(nil)

// NewFactory creates a new connector factory
func NewFactory(opts ...FactoryOption) Factory {
	f := &defaultFactory{gitClient: git.NewDefaultGitClient()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create creates a connector for the given source type
func (f *defaultFactory) Create(
	ctx context.Context,
	cfg *config.Config,
	tenant *model.Tenant,
	source string,
) (Connector, error) {
	maxBytes := cfg.Engine.GetMaxContentBytes()

	switch source {
	case model.SourceLocal:
		if cfg.Sources.Local == nil || cfg.Sources.Local.Root == "" {
			return nil, &ConfigError{Reason: "sources.local.root is not configured"}
		}
		return NewLocalConnector(cfg.Sources.Local.Root, maxBytes), nil

	case model.SourceGit:
		clone, err := gitCloneConfig(cfg.Sources.Git)
		if err != nil {
			return nil, err
		}
		return NewGitConnector(f.gitClient, clone, maxBytes), nil

	case model.SourceDrive, model.SourceSheets:
		google := cfg.Sources.Google
		opts := googleClientOptions(google, tenant, source)
		opts = append(opts, f.clientOpts...)
		limiter := newLimiter(google.GetRequestsPerSecond())

		if source == model.SourceDrive {
			return NewDriveConnector(ctx, limiter, maxBytes, opts...)
		}
		return NewSheetsConnector(ctx, limiter, opts...)

	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported source type %q", source)}
	}
}

// googleClientOptions resolves credentials and endpoint for a tenant's Google connector.
// A tenant's own service account takes precedence over the shared one.
func googleClientOptions(google *config.GoogleConfig, tenant *model.Tenant, source string) []option.ClientOption {
	var opts []option.ClientOption

	credentials := ""
	if tenant != nil && tenant.CredentialsFile != "" {
		credentials = tenant.CredentialsFile
	} else if google != nil {
		credentials = google.CredentialsFile
	}

	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	if google != nil && google.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpointFor(google.Endpoint, source)))
		if credentials == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	return opts
}

// gitCloneConfig builds the clone settings, reading the password file
func gitCloneConfig(cfg *config.GitConfig) (*git.CloneConfig, error) {
	if cfg == nil || cfg.Repository == "" {
		return nil, &ConfigError{Reason: "sources.git.repository is not configured"}
	}

	clone := &git.CloneConfig{
		URL:    cfg.Repository,
		Branch: cfg.Branch,
		Tag:    cfg.Tag,
		Commit: cfg.Commit,
	}
	if cfg.Auth != nil {
		password, err := cfg.Auth.GetPassword()
		if err != nil {
			return nil, &ConfigError{Reason: "git credentials are not readable", Err: err}
		}
		clone.Auth = &git.AuthConfig{Username: cfg.Auth.Username, Password: password}
	}
	return clone, nil
}
