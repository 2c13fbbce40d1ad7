// Package memconnector is an in-memory fake of
// domain/transport.Connector: a map guarded by a sync.RWMutex. It
// backs tests for PaymentSender/PaymentReceiver without depending on
// a real signed-web-drive transport.
package memconnector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/paymentfabric/slashpay-engine/internal/domain/transport"
)

type Connector struct {
	mu      sync.RWMutex
	ready   bool
	values  map[string][]byte
	counter atomic.Int64
}

func New() *Connector {
	return &Connector{values: make(map[string][]byte)}
}

func (c *Connector) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = true
	return nil
}

func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	return nil
}

func (c *Connector) Create(ctx context.Context, path string, value []byte, opts transport.CreateOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url := c.urlFor(path)
	c.values[url] = append([]byte(nil), value...)
	return url, nil
}

func (c *Connector) ReadRemote(ctx context.Context, url string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[url]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (c *Connector) GetURL(ctx context.Context, path string, opts transport.CreateOptions) (string, error) {
	return c.urlFor(path), nil
}

func (c *Connector) urlFor(path string) string {
	return fmt.Sprintf("mem://drive%s", path)
}
