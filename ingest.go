package sonic

import (
	"context"
	"errors"

	"github.com/searchbound/sonic/protocol"
)

// ErrMissingBucket is returned when an object scope is given without the
// bucket that contains it.
var ErrMissingBucket = errors.New("sonic: object scope requires a bucket")

// IngestClient writes to a Sonic index over the ingest channel.
type IngestClient struct {
	*client
}

// NewIngestClient creates a client bound to the ingest channel.
func NewIngestClient(servers Servers, config Config) (*IngestClient, error) {
	c, err := newClient(servers, protocol.ChannelIngest, config)
	if err != nil {
		return nil, err
	}
	return &IngestClient{client: c}, nil
}

// Push indexes text for the given object. Text is quoted and flattened to a
// single line before transmission. Lang is an optional ISO 639-3 locale hint;
// pass the empty string to let the server detect the language.
func (c *IngestClient) Push(ctx context.Context, collection, bucket, object, text, lang string) error {
	resp, err := c.execute(ctx, routingKey(collection, bucket), protocol.CmdPush,
		collection, bucket, object,
		protocol.Quote(text),
		protocol.FormatOption("LANG", lang),
	)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &protocol.ProtocolError{Message: "expected OK, got: " + resp.Raw}
	}
	c.stats.recordPush()
	return nil
}

// Pop removes text from the given object and returns the number of terms
// actually removed.
func (c *IngestClient) Pop(ctx context.Context, collection, bucket, object, text string) (int, error) {
	resp, err := c.execute(ctx, routingKey(collection, bucket), protocol.CmdPop,
		collection, bucket, object,
		protocol.Quote(text),
	)
	if err != nil {
		return 0, err
	}
	if resp.Kind != protocol.KindResult {
		return 0, &protocol.ProtocolError{Message: "expected RESULT, got: " + resp.Raw}
	}
	c.stats.recordPop()
	return resp.Count, nil
}

// Count returns the number of buckets in a collection, objects in a bucket,
// or terms in an object, depending on how many scope arguments are given.
// Pass empty strings for the scopes you do not want to narrow by; an object
// without a bucket is invalid.
func (c *IngestClient) Count(ctx context.Context, collection, bucket, object string) (int, error) {
	if object != "" && bucket == "" {
		return 0, ErrMissingBucket
	}

	resp, err := c.execute(ctx, routingKey(collection, bucket), protocol.CmdCount,
		collection, bucket, object,
	)
	if err != nil {
		return 0, err
	}
	if resp.Kind != protocol.KindResult {
		return 0, &protocol.ProtocolError{Message: "expected RESULT, got: " + resp.Raw}
	}
	c.stats.recordCount()
	return resp.Count, nil
}

// FlushCollection erases a whole collection and returns the number of
// objects erased.
func (c *IngestClient) FlushCollection(ctx context.Context, collection string) (int, error) {
	return c.flush(ctx, protocol.CmdFlushC, collection, "", "")
}

// FlushBucket erases one bucket within a collection.
func (c *IngestClient) FlushBucket(ctx context.Context, collection, bucket string) (int, error) {
	return c.flush(ctx, protocol.CmdFlushB, collection, bucket, "")
}

// FlushObject erases one object within a bucket.
func (c *IngestClient) FlushObject(ctx context.Context, collection, bucket, object string) (int, error) {
	return c.flush(ctx, protocol.CmdFlushO, collection, bucket, object)
}

// Flush dispatches to the narrowest flush covering the given scope: object
// if an object is named, bucket if only a bucket is named, collection
// otherwise.
func (c *IngestClient) Flush(ctx context.Context, collection, bucket, object string) (int, error) {
	switch {
	case object != "" && bucket != "":
		return c.FlushObject(ctx, collection, bucket, object)
	case object != "":
		return 0, ErrMissingBucket
	case bucket != "":
		return c.FlushBucket(ctx, collection, bucket)
	default:
		return c.FlushCollection(ctx, collection)
	}
}

func (c *IngestClient) flush(ctx context.Context, verb, collection, bucket, object string) (int, error) {
	args := []string{collection}
	if bucket != "" {
		args = append(args, bucket)
	}
	if object != "" {
		args = append(args, object)
	}

	resp, err := c.execute(ctx, routingKey(collection, bucket), verb, args...)
	if err != nil {
		return 0, err
	}
	if resp.Kind != protocol.KindResult {
		return 0, &protocol.ProtocolError{Message: "expected RESULT, got: " + resp.Raw}
	}
	c.stats.recordFlush()
	return resp.Count, nil
}

// routingKey derives the endpoint selection key from the collection and
// bucket so that all commands touching the same bucket land on the same
// endpoint.
func routingKey(collection, bucket string) string {
	if bucket == "" {
		return collection
	}
	return collection + "/" + bucket
}
