package sonic

import (
	"context"

	"github.com/searchbound/sonic/protocol"
)

// SearchClient queries a Sonic index over the search channel.
type SearchClient struct {
	*client
}

// NewSearchClient creates a client bound to the search channel.
func NewSearchClient(servers Servers, config Config) (*SearchClient, error) {
	c, err := newClient(servers, protocol.ChannelSearch, config)
	if err != nil {
		return nil, err
	}
	return &SearchClient{client: c}, nil
}

// QueryOptions narrows a Query. Zero values are omitted from the command.
type QueryOptions struct {
	// Limit caps the number of object identifiers returned.
	Limit int

	// Offset skips past the first results, for pagination.
	Offset int

	// Lang is an ISO 639-3 locale hint for the query terms.
	Lang string
}

// Query searches a bucket for terms and returns the matching object
// identifiers, most relevant first. An empty result is a nil slice, not an
// error. Terms are quoted and flattened to a single line.
func (c *SearchClient) Query(ctx context.Context, collection, bucket, terms string, opts QueryOptions) ([]string, error) {
	ids, err := c.executeAsync(ctx, routingKey(collection, bucket), protocol.CmdQuery,
		collection, bucket,
		protocol.Quote(terms),
		protocol.FormatOptionInt("LIMIT", opts.Limit),
		protocol.FormatOptionInt("OFFSET", opts.Offset),
		protocol.FormatOption("LANG", opts.Lang),
	)
	if err != nil {
		return nil, err
	}
	c.stats.recordQuery()
	return ids, nil
}

// Suggest completes a single word against a bucket's indexed terms. Limit
// caps the number of suggestions; zero uses the server default.
func (c *SearchClient) Suggest(ctx context.Context, collection, bucket, word string, limit int) ([]string, error) {
	suggestions, err := c.executeAsync(ctx, routingKey(collection, bucket), protocol.CmdSuggest,
		collection, bucket,
		protocol.Quote(word),
		protocol.FormatOptionInt("LIMIT", limit),
	)
	if err != nil {
		return nil, err
	}
	c.stats.recordSuggest()
	return suggestions, nil
}
