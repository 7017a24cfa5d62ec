package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "ignblog:"

// Valkey is a Cache backed by a Valkey (or Redis) server.
type Valkey struct {
	client valkey.Client
}

// NewValkey creates a new Valkey client.
func NewValkey(address string, tlsEnabled bool) (*Valkey, error) {
	if address == "" {
		return nil, errors.New("valkey address is required")
	}

	var tlsConfig *tls.Config // nil by default
	if tlsEnabled {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
		TLSConfig:   tlsConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return &Valkey{client: client}, nil
}

func (v *Valkey) Load(ctx context.Context, key string, dst any) (bool, error) {
	cmd := v.client.B().Get().Key(keyPrefix + key).Build()
	resp := v.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to execute get command: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return false, fmt.Errorf("failed to convert response to bytes: %w", err)
	}
	if err := msgpack.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (v *Valkey) Save(ctx context.Context, key string, val any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	cmd := v.client.B().Set().Key(keyPrefix + key).Value(valkey.BinaryString(data)).Ex(ttl).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Ping checks that the server answers.
func (v *Valkey) Ping(ctx context.Context) error {
	cmd := v.client.B().Ping().Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to ping valkey: %w", err)
	}
	return nil
}

func (v *Valkey) Close() {
	v.client.Close()
}
