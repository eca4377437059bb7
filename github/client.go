package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Options configures both transports.
type Options struct {
	Token      string
	App        AppCredentials
	APIURL     string
	GraphQLURL string
	Timeout    time.Duration
}

// Client bundles the bulk and per-resource transports, sharing one authenticated HTTP client.
type Client struct {
	Bulk     *GraphQLClient
	Resource *RESTClient
}

// NewClient authenticates (exchanging App credentials for an installation token when no
// personal token is configured) and builds both transports.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	token := opts.Token
	if token == "" {
		var err error
		token, err = GetInstallationToken(ctx, &http.Client{Timeout: 30 * time.Second}, opts.APIURL, opts.App)
		if err != nil {
			return nil, fmt.Errorf("github app authentication failed: %w", err)
		}
	}

	httpClient := NewHTTPClient(token, opts.Timeout)

	rest, err := NewRESTClient(httpClient, opts.APIURL, logger)
	if err != nil {
		return nil, err
	}

	graphqlURL := opts.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = DefaultGraphQLURL
	}

	return &Client{
		Bulk:     NewGraphQLClient(httpClient, graphqlURL, logger),
		Resource: rest,
	}, nil
}
