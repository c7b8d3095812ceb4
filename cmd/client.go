package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"driverecover/config"
	"driverecover/internal/errors"
	"driverecover/internal/graph"
	"driverecover/internal/logging"
	"driverecover/internal/remote"
	"driverecover/internal/restore"
	"driverecover/internal/s3client"
)

// clientFactory builds the remote client for the configured backend.
var clientFactory = newClient

func newClient(ctx context.Context, c *config.Config) (remote.Client, restore.PathResolver, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	switch c.Backend {
	case config.BackendS3:
		client, err := s3client.New(&c.S3)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Resolver(), nil
	default:
		ts, err := graph.TokenSource(ctx, graph.Credentials{
			TenantID:     c.Graph.TenantID,
			ClientID:     c.Graph.ClientID,
			ClientSecret: c.Graph.ClientSecret,
			AccessToken:  c.Graph.AccessToken,
		})
		if err != nil {
			return nil, nil, err
		}
		client, err := graph.New(ctx, graph.Config{
			BaseURL:           c.Graph.BaseURL,
			DriveID:           c.Graph.DriveID,
			RequestsPerSecond: c.Graph.RequestsPerSecond,
			TokenSource:       ts,
			Logger:            logging.L(),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client.Resolver(), nil
	}
}

// newResolver returns the path resolver of the configured backend without
// connecting to it.
func newResolver(c *config.Config) (restore.PathResolver, error) {
	switch c.Backend {
	case config.BackendGraph:
		return graph.NewPathResolver(c.Graph.DriveID), nil
	case config.BackendS3:
		return s3client.PathResolver{}, nil
	}
	return nil, errors.Errorf("unknown backend %q", c.Backend)
}

// newRestorer connects to the backend and returns a restorer whose options
// are the config merged with over.
func newRestorer(ctx context.Context, over restore.Options) (*restore.Restorer, remote.Client, error) {
	client, resolver, err := clientFactory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := cfg.Restore.Options()
	opts.Logger = logging.L()
	return restore.New(client, resolver, opts.Merge(over)), client, nil
}

// refFromArgs picks the walk root from the positional item id or --path.
func refFromArgs(cmd *cobra.Command, args []string) (restore.Ref, error) {
	path, _ := cmd.Flags().GetString("path")
	switch {
	case len(args) > 0 && path != "":
		return restore.Ref{}, errors.New("pass either an item id or --path, not both")
	case len(args) > 0:
		return restore.Ref{ID: args[0]}, nil
	case path != "":
		return restore.Ref{Path: splitPath(path)}, nil
	}
	return restore.Ref{}, errors.New("an item id or --path is required")
}

// splitPath splits a slash separated path into segments. Qualified addresses
// such as s3://bucket/key are passed on whole.
func splitPath(p string) []string {
	if strings.Contains(p, "://") {
		return []string{p}
	}
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
