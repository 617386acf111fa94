package scylla

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"haruup-service/internal/config"
	"haruup-service/internal/util"
)

// Writes are retried this many times on top of the driver retry policy.
const writeRetries = 2

var keyspaceName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

// NewScyllaClient creates the configured keyspace when it is missing and opens a session on it.
func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	ddl, err := keyspaceDDL(scyllaConfig.Keyspace, scyllaConfig.ReplicationFactor)
	if err != nil {
		return nil, err
	}
	if err := ensureKeyspace(newCluster(scyllaConfig, ""), ddl); err != nil {
		return nil, err
	}

	session, err := newCluster(scyllaConfig, scyllaConfig.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

func newCluster(scyllaConfig config.ScyllaConfig, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.PageSize = 500
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}
	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}
	return cluster
}

func ensureKeyspace(cluster *gocql.ClusterConfig, ddl string) error {
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create scylla bootstrap session: %w", err)
	}
	defer session.Close()

	if err := session.Query(ddl).Exec(); err != nil {
		return fmt.Errorf("failed to create scylla keyspace: %w", err)
	}
	return nil
}

// keyspaceDDL builds CREATE KEYSPACE IF NOT EXISTS. Identifiers cannot be bound, so the name is
// validated instead.
func keyspaceDDL(keyspace string, replicationFactor int) (string, error) {
	if !keyspaceName.MatchString(keyspace) {
		return "", fmt.Errorf("invalid scylla keyspace name %q", keyspace)
	}
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		keyspace, replicationFactor), nil
}

// Exec runs a write, retrying with a linear backoff.
func (s *ScyllaClient) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return s.ExecuteWithRetry(ctx, s.Session.Query(stmt, values...), writeRetries)
}

// Iter runs a read. The caller must Close the returned iterator.
func (s *ScyllaClient) Iter(ctx context.Context, stmt string, values ...interface{}) Iter {
	return s.Session.Query(stmt, values...).WithContext(ctx).Iter()
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := query.WithContext(ctx).Exec()
		if err == nil {
			return nil
		}
		lastErr = err
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}
