package checksumstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/consul/api"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// consulSessionTTL is the lock session timeout, bounding how long a
// crashed holder can block the store.
const consulSessionTTL = 120 * time.Second

// Consul is a distributed Store backed by a single JSON blob under one
// key of a Consul KV store. Every write acquires a named session lock,
// re-reads the current blob, merges, and writes it back, making it the
// only variant safe for cross-process sharing.
type Consul struct {
	client  *api.Client
	dataKey string
	lockKey string
}

// ConsulOptions configures a Consul store. Token falls through to the
// CONSUL_HTTP_TOKEN environment variable via api.DefaultConfig when
// left empty.
type ConsulOptions struct {
	URL     string
	Token   string
	DataKey string
	LockKey string
}

// NewConsul constructs a Consul store from opts.
func NewConsul(opts ConsulOptions) (*Consul, error) {
	cfg := api.DefaultConfig()
	if opts.URL != "" {
		cfg.Address = opts.URL
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, thrifterr.UnreadableChecksumStorage(err)
	}

	return &Consul{client: client, dataKey: opts.DataKey, lockKey: opts.LockKey}, nil
}

func (c *Consul) Get(id string) (string, bool, error) {
	all, err := c.GetAll()
	if err != nil {
		return "", false, err
	}
	v, ok := all[id]
	return v, ok, nil
}

func (c *Consul) GetAll() (map[string]string, error) {
	pair, _, err := c.client.KV().Get(c.dataKey, nil)
	if err != nil {
		return nil, thrifterr.UnreadableChecksumStorage(err)
	}
	if pair == nil || len(pair.Value) == 0 {
		return map[string]string{}, nil
	}
	var data map[string]string
	if err := json.Unmarshal(pair.Value, &data); err != nil {
		return nil, thrifterr.UnreadableChecksumStorage(err)
	}
	return data, nil
}

func (c *Consul) Set(id, fingerprint string) error {
	return c.SetAll(map[string]string{id: fingerprint})
}

func (c *Consul) SetAll(mapping map[string]string) error {
	operation := func() error {
		return c.withLock(func() error {
			current, err := c.GetAll()
			if err != nil {
				return err
			}
			for k, v := range mapping {
				current[k] = v
			}
			content, err := json.Marshal(current)
			if err != nil {
				return backoff.Permanent(err)
			}
			_, err = c.client.KV().Put(&api.KVPair{Key: c.dataKey, Value: content}, nil)
			if err != nil {
				return thrifterr.UnreadableChecksumStorage(err)
			}
			return nil
		})
	}
	return backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
}

// withLock acquires the named distributed lock for the duration of fn,
// re-read-merge-write happening entirely while held.
func (c *Consul) withLock(fn func() error) error {
	lock, err := c.client.LockOpts(&api.LockOptions{
		Key:        c.lockKey,
		SessionTTL: consulSessionTTL.String(),
	})
	if err != nil {
		return thrifterr.UnreadableChecksumStorage(err)
	}

	lockCh, err := lock.Lock(nil)
	if err != nil {
		return thrifterr.UnreadableChecksumStorage(err)
	}
	if lockCh == nil {
		return thrifterr.UnreadableChecksumStorage(fmt.Errorf("checksumstore: lock %q held elsewhere", c.lockKey))
	}
	defer lock.Unlock()

	return fn()
}
