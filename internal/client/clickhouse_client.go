package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"haruup-service/internal/config"
	"haruup-service/internal/util"
)

// Native protocol ports.
const (
	clickhousePort       = "9000"
	clickhouseSecurePort = "9440"
)

// ClickHouseClient is the analytics sink connection. It is only written to in batches.
type ClickHouseClient struct {
	conn      driver.Conn
	closeOnce sync.Once
}

type clickhouseEndpoint struct {
	addr   string
	host   string
	secure bool
}

// parseClickHouseURL accepts host, host:port, or a tcp/clickhouse/http(s) URL. https and a
// "secure=true" query select TLS and the secure default port.
func parseClickHouseURL(raw string) (clickhouseEndpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return clickhouseEndpoint{}, fmt.Errorf("clickhouse url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return clickhouseEndpoint{}, fmt.Errorf("invalid clickhouse url: %w", err)
	}
	if u.Hostname() == "" {
		return clickhouseEndpoint{}, fmt.Errorf("clickhouse url %q has no host", raw)
	}

	ep := clickhouseEndpoint{
		host:   u.Hostname(),
		secure: u.Scheme == "https" || u.Query().Get("secure") == "true",
	}
	port := u.Port()
	if port == "" {
		port = clickhousePort
		if ep.secure {
			port = clickhouseSecurePort
		}
	}
	ep.addr = net.JoinHostPort(ep.host, port)
	return ep, nil
}

func clickhouseTLS(serverName, caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}
	if caFile == "" {
		return tlsConfig, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ClickHouse CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// NewClickHouseClient opens the connection and pings it. Production always uses TLS.
func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	ep, err := parseClickHouseURL(chConfig.URL)
	if err != nil {
		return nil, err
	}

	opts := &ch.Options{
		Addr: []string{ep.addr},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		Compression:     &ch.Compression{Method: ch.CompressionLZ4},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
	if ep.secure || cfg.IsProduction() {
		if opts.TLS, err = clickhouseTLS(ep.host, chConfig.CAFile); err != nil {
			return nil, err
		}
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("ClickHouse client initialized",
		zap.String("addr", ep.addr),
		zap.String("database", chConfig.Database),
		zap.Bool("tls_enabled", opts.TLS != nil),
	)
	return &ClickHouseClient{conn: conn}, nil
}

func (c *ClickHouseClient) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

// BatchInsert sends every row in one block. A row that does not fit the table aborts the batch.
func (c *ClickHouseClient) BatchInsert(ctx context.Context, query string, data [][]interface{}) error {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i, row := range data {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch of %d rows: %w", len(data), err)
	}
	return nil
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if err = c.conn.Close(); err != nil {
			util.Error("Failed to close ClickHouse connection", util.ErrorField(err))
			return
		}
		util.Info("ClickHouse connection closed")
	})
	return err
}
