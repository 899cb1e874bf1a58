package mongoimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/status"
	"github.com/ousepachn/insta-media-sync/pkg/config"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

const (
	syncCollection   = "scraping_results"
	verifyCollection = "verification_results"
)

type Opts struct {
	fx.In
	LC fx.Lifecycle

	Config *config.Config
	Logger logger.Logger
}

type MongoSink struct {
	db     *mongo.Database
	logger logger.Logger
}

var _ status.Sink = (*MongoSink)(nil)

func New(opts Opts) (*MongoSink, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	clientOpts := options.Client().ApplyURI(opts.Config.Mongo.URI).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(context.Background(), clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	opts.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx, nil); err != nil {
				return fmt.Errorf("failed to ping mongodb: %w", err)
			}
			opts.Logger.Info("Connected to mongodb")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	return &MongoSink{
		db:     client.Database(opts.Config.Mongo.Database),
		logger: opts.Logger.WithComponent("StatusSink"),
	}, nil
}

type statusDoc struct {
	Username    string    `bson:"_id"`
	Status      string    `bson:"status"`
	Message     string    `bson:"message,omitempty"`
	Error       string    `bson:"error,omitempty"`
	CurrentPost int       `bson:"current_post,omitempty"`
	TotalPosts  int       `bson:"total_posts,omitempty"`
	Timestamp   time.Time `bson:"timestamp"`
}

func (s *MongoSink) SetSync(ctx context.Context, username string, st status.Status) error {
	return s.set(ctx, syncCollection, username, st)
}

func (s *MongoSink) GetSync(ctx context.Context, username string) (status.Status, bool, error) {
	return s.get(ctx, syncCollection, username)
}

func (s *MongoSink) SetVerify(ctx context.Context, username string, st status.Status) error {
	return s.set(ctx, verifyCollection, username, st)
}

func (s *MongoSink) GetVerify(ctx context.Context, username string) (status.Status, bool, error) {
	return s.get(ctx, verifyCollection, username)
}

func (s *MongoSink) set(ctx context.Context, collection, username string, st status.Status) error {
	doc := statusDoc{
		Username:    username,
		Status:      st.Status,
		Message:     st.Message,
		Error:       st.Error,
		CurrentPost: st.CurrentPost,
		TotalPosts:  st.TotalPosts,
		Timestamp:   time.Now().UTC(),
	}

	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": username}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		// Status writes must never take a pipeline down.
		s.logger.Error("Failed to write status", "username", username, "error", err)
		return err
	}
	return nil
}

func (s *MongoSink) get(ctx context.Context, collection, username string) (status.Status, bool, error) {
	var doc statusDoc
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return status.Status{}, false, nil
		}
		return status.Status{}, false, err
	}
	return status.Status{
		Status:      doc.Status,
		Message:     doc.Message,
		Error:       doc.Error,
		CurrentPost: doc.CurrentPost,
		TotalPosts:  doc.TotalPosts,
	}, true, nil
}
