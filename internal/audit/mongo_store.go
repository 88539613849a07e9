package audit

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps the audit trail in a MongoDB collection.
type MongoStore struct {
	client           *mongo.Client
	events           *mongo.Collection
	operationTimeout time.Duration
}

// MongoURI builds the connection string for cfg.
func MongoURI(cfg config.MongoConfig) string {
	// credentials may contain reserved characters
	encodedUser := url.QueryEscape(cfg.Username)
	encodedPass := url.QueryEscape(cfg.Password)
	if encodedUser == "" {
		return fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		cfg.Host,
		cfg.Port,
	)
}

// ConnectMongoStore dials MongoDB and prepares the events collection.
func ConnectMongoStore(ctx context.Context, appName string, cfg config.MongoConfig) (*MongoStore, error) {
	logger.DebugF("Connecting to audit database...")

	clientOptions, operationTimeout, err := mongoClientOptions(appName, cfg)
	if err != nil {
		return nil, err
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Audit database connection created: %s", evt.Address)
			case event.ConnectionClosed:
				logger.DebugF("Audit database connection closed: %s, reason %s", evt.Address, evt.Reason)
			}
		},
	})

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to audit database: %w", err)
	}

	if err = client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occured while pinging audit database: %w", err)
	}

	events := client.Database(cfg.Database).Collection(EventCollectionName)
	_, err = events.Indexes().CreateOne(
		connectCtx,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "at", Value: 1}},
			Options: options.Index().SetName("audit_events_username_at"),
		},
	)
	if err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occured while creating audit indexes: %w", err)
	}

	return &MongoStore{
		client:           client,
		events:           events,
		operationTimeout: operationTimeout,
	}, nil
}

func (ms *MongoStore) Save(ctx context.Context, e Event) error {
	if e.Username == "" {
		return ErrUsernameEmpty
	}

	ctx, cancel := context.WithTimeout(ctx, ms.operationTimeout)
	defer cancel()

	if _, err := ms.events.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("database operation failed: %w", err)
	}
	return nil
}

func (ms *MongoStore) History(ctx context.Context, username string) ([]Event, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}

	ctx, cancel := context.WithTimeout(ctx, ms.operationTimeout)
	defer cancel()

	startTime := time.Now()
	cursor, err := ms.events.Find(ctx,
		bson.D{{Key: "username", Value: username}},
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("database operation failed: %w", err)
	}

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("database operation failed: %w", err)
	}
	logger.DebugF("audit history query cost: %v", time.Since(startTime))
	return events, nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	logger.InfoF("Closing audit database connection")
	ctx, cancel := context.WithTimeout(ctx, ms.operationTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

// mongoClientOptions builds the driver options from cfg. Empty timeouts keep
// the driver defaults; malformed ones are an error.
func mongoClientOptions(appName string, cfg config.MongoConfig) (*options.ClientOptions, time.Duration, error) {
	operationTimeout, err := parseTimeout(cfg.OperationTimeout, 5*time.Second)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid operation_timeout: %w", err)
	}

	clientOptions := options.Client().ApplyURI(MongoURI(cfg)).SetAppName(appName)
	clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)

	timeouts := []struct {
		name  string
		value string
		apply func(time.Duration) *options.ClientOptions
	}{
		{"connect_idle_timeout", cfg.ConnectIdleTimeout, clientOptions.SetMaxConnIdleTime},
		{"connect_timeout", cfg.ConnectTimeout, clientOptions.SetConnectTimeout},
		{"socket_timeout", cfg.SocketTimeout, clientOptions.SetSocketTimeout},
		{"heartbeat", cfg.Heartbeat, clientOptions.SetHeartbeatInterval},
	}
	for _, timeout := range timeouts {
		d, err := parseTimeout(timeout.value, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid %s: %w", timeout.name, err)
		}
		if d > 0 {
			timeout.apply(d)
		}
	}
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return clientOptions, operationTimeout, nil
}

func parseTimeout(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return utils.ParseDuration(s)
}
