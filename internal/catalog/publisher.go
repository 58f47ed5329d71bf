package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/annotation"
)

// Publisher writes snapshots to a backend. The latest snapshot lives under
// prefix+"catalog"; each snapshot is also kept under prefix+"catalog:"+id.
type Publisher struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	logger  *zap.Logger
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithTTL expires snapshots kept by id after ttl. The latest pointer never expires.
func WithTTL(ttl time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.ttl = ttl
	}
}

// WithLogger sets the publisher's logger
func WithLogger(logger *zap.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates a publisher over backend
func NewPublisher(backend Backend, prefix string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		backend: backend,
		prefix:  prefix,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LatestKey returns the key of the latest snapshot
func (p *Publisher) LatestKey() string {
	return p.prefix + "catalog"
}

// SnapshotKey returns the key a snapshot is kept under
func (p *Publisher) SnapshotKey(snap *Snapshot) string {
	return p.prefix + "catalog:" + snap.ID.String()
}

// Publish takes a snapshot of store and writes it
func (p *Publisher) Publish(ctx context.Context, store *annotation.Store) (*Snapshot, error) {
	snap, err := Take(store)
	if err != nil {
		return nil, err
	}
	if err := p.Write(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Write stores snap as the latest snapshot
func (p *Publisher) Write(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	if err := p.backend.Set(ctx, p.SnapshotKey(snap), data, p.ttl); err != nil {
		return fmt.Errorf("failed to store catalog: %w", err)
	}
	if err := p.backend.Set(ctx, p.LatestKey(), data, 0); err != nil {
		return fmt.Errorf("failed to store catalog: %w", err)
	}

	p.logger.Info("published catalog",
		zap.String("id", snap.ID.String()),
		zap.Int("entries", len(snap.Entries)),
	)
	return nil
}

// Latest reads the latest snapshot back
func (p *Publisher) Latest(ctx context.Context) (*Snapshot, error) {
	return load(ctx, p.backend, p.LatestKey())
}

// Load reads the snapshot published with id
func (p *Publisher) Load(ctx context.Context, id string) (*Snapshot, error) {
	return load(ctx, p.backend, p.prefix+"catalog:"+id)
}

func load(ctx context.Context, backend Backend, key string) (*Snapshot, error) {
	data, err := backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", key, err)
	}
	return &snap, nil
}
