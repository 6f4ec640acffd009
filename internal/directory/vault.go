package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/openapigw/internal/auth"
	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// Vault KV field names holding caller data.
const (
	VaultFieldID        = "id"
	VaultFieldSecretKey = "secretKey"
)

// ErrInvalidVaultSecret indicates a caller secret without the expected fields.
var ErrInvalidVaultSecret = errors.New("invalid caller secret in vault")

// VaultConfig configures the Vault directory.
type VaultConfig struct {
	Address string
	Token   string
	// Mount is the KV v2 mount, e.g. "secret".
	Mount string
	// PathPrefix is prepended to the access key, e.g. "openapigw/callers".
	PathPrefix string
	Timeout    time.Duration
	MaxRetries int
}

// Vault resolves callers from KV v2 secrets stored at
// <mount>/data/<prefix>/<accessKey>.
type Vault struct {
	client *vaultapi.Client
	mount  string
	prefix string
	logger  observability.Logger
	timeout time.Duration
	group   singleflight.Group
}

// DefaultVaultTimeout bounds a shared Vault read when no timeout is configured.
const DefaultVaultTimeout = 5 * time.Second

// NewVault creates a Vault directory.
func NewVault(cfg VaultConfig, logger observability.Logger) (*Vault, error) {
	if cfg.Mount == "" {
		return nil, errors.New("vault mount is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	vcfg := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	timeout := DefaultVaultTimeout
	if cfg.Timeout > 0 {
		vcfg.Timeout = cfg.Timeout
		timeout = cfg.Timeout
	}
	vcfg.MaxRetries = cfg.MaxRetries

	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &Vault{
		client: client,
		mount:  strings.Trim(cfg.Mount, "/"),
		prefix: strings.Trim(cfg.PathPrefix, "/"),
		logger:  logger,
		timeout: timeout,
	}, nil
}

// ResolveCaller implements auth.Directory. Concurrent lookups of the same
// access key share one Vault read. The shared read is detached from any single
// caller's cancellation and bounded by the configured timeout; each caller
// still stops waiting when its own ctx is done.
func (v *Vault) ResolveCaller(ctx context.Context, accessKey string) (*auth.Caller, error) {
	if accessKey == "" || strings.ContainsAny(accessKey, "/?#") {
		return nil, auth.ErrCallerNotFound
	}

	ch := v.group.DoChan(accessKey, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return v.read(readCtx, accessKey)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		c := *res.Val.(*auth.Caller)
		return &c, nil
	}
}

func (v *Vault) read(ctx context.Context, accessKey string) (*auth.Caller, error) {
	path := v.mount + "/data/" + accessKey
	if v.prefix != "" {
		path = v.mount + "/data/" + v.prefix + "/" + accessKey
	}

	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, auth.ErrCallerNotFound
	}

	// KV v2 wraps data in a "data" key; deleted versions carry data: null.
	raw, ok := secret.Data["data"]
	if !ok || raw == nil {
		return nil, auth.ErrCallerNotFound
	}
	data, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected data type %T", ErrInvalidVaultSecret, path, raw)
	}

	id, err := toInt64(data[VaultFieldID])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: id: %w", ErrInvalidVaultSecret, path, err)
	}
	secretKey, _ := data[VaultFieldSecretKey].(string)
	if secretKey == "" {
		return nil, fmt.Errorf("%w: %s: missing %s", ErrInvalidVaultSecret, path, VaultFieldSecretKey)
	}

	v.logger.Debug("caller resolved from vault", observability.String("path", path))
	return &auth.Caller{ID: id, AccessKey: accessKey, SecretKey: secretKey}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
