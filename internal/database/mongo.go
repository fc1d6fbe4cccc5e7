package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrMongoUnavailable is returned when every connection attempt failed.
var ErrMongoUnavailable = errors.New("failed to connect to mongo")

// MongoOptions tunes the client pool and the connect retry loop.
type MongoOptions struct {
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	RetryAttempts  int
	RetryInterval  time.Duration
}

// DefaultMongoOptions are used by the serve command.
var DefaultMongoOptions = MongoOptions{
	ConnectTimeout: 10 * time.Second,
	MaxPoolSize:    100,
	RetryAttempts:  3,
	RetryInterval:  2 * time.Second,
}

// OpenMongo connects to uri, pings the server and returns the named database.
// Connecting is retried RetryAttempts times before giving up.
func OpenMongo(ctx context.Context, uri, database string, opts MongoOptions) (*mongo.Database, error) {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	for attempt := range opts.RetryAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(uri).
				SetConnectTimeout(opts.ConnectTimeout).
				SetMaxPoolSize(opts.MaxPoolSize).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				return client.Database(database), nil
			}
			_ = client.Disconnect(context.Background())
		}
		if attempt == opts.RetryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
	return nil, ErrMongoUnavailable
}
