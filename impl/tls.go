package impl

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/caddyserver/certmagic"
	"github.com/libdns/porkbun"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-envconfig"
)

const lockTTL = 1 * time.Minute

// storage keeps certmagic's certificates and locks in redis.
type storage struct {
	rdb    *redis.Client
	locker *redislock.Client
	locks  sync.Map
}

func newStorage(rdb *redis.Client) *storage {
	return &storage{
		rdb:    rdb,
		locker: redislock.New(rdb),
	}
}

func certKey(key string) string {
	return fmt.Sprintf("tls:%v", key)
}

// Lock takes the distributed issuance lock for name, retrying until ctx is done.
func (s *storage) Lock(ctx context.Context, name string) error {
	opts := &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(1 * time.Second),
	}

	lock, err := s.locker.Obtain(ctx, fmt.Sprintf("tls:lock:%v", name), lockTTL, opts)
	if err != nil {
		return err
	}

	s.locks.Store(name, lock)
	return nil
}

// Unlock releases a lock obtained by this process through Lock.
func (s *storage) Unlock(ctx context.Context, name string) error {
	lock, ok := s.locks.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("no lock for %v", name)
	}

	return lock.(*redislock.Lock).Release(ctx)
}

// Store writes value with its size and modification time into one hash.
func (s *storage) Store(ctx context.Context, key string, value []byte) error {
	hashmap := map[string]any{
		"modified": time.Now().Unix(),
		"data":     base64.RawURLEncoding.EncodeToString(value),
		"size":     len(value),
	}

	return s.rdb.HSet(ctx, certKey(key), hashmap).Err()
}

// Load returns fs.ErrNotExist for missing keys, which certmagic relies on.
func (s *storage) Load(ctx context.Context, key string) ([]byte, error) {
	res, err := s.rdb.HGet(ctx, certKey(key), "data").Result()
	if err == redis.Nil {
		return nil, fs.ErrNotExist
	} else if err != nil {
		return nil, err
	}

	return base64.RawURLEncoding.DecodeString(res)
}

// Delete removes the whole hash for key.
func (s *storage) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, certKey(key)).Err()
}

// Exists treats redis errors as absence.
func (s *storage) Exists(ctx context.Context, key string) bool {
	res, err := s.rdb.Exists(ctx, certKey(key)).Result()
	return err == nil && res > 0
}

// List matches keys by prefix; recursive listing widens the match with a glob.
func (s *storage) List(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	pattern := certKey(prefix)
	if recursive {
		pattern = fmt.Sprintf("%v*", pattern)
	}

	return s.rdb.Keys(ctx, pattern).Result()
}

// Stat reports fs.ErrNotExist when the hash or either field is missing.
func (s *storage) Stat(ctx context.Context, key string) (certmagic.KeyInfo, error) {
	info := certmagic.KeyInfo{}

	res, err := s.rdb.HMGet(ctx, certKey(key), "modified", "size").Result()
	if err != nil {
		return info, err
	}

	if len(res) != 2 || res[0] == nil || res[1] == nil {
		return info, fs.ErrNotExist
	}

	modified, err := strconv.Atoi(res[0].(string))
	if err != nil {
		return info, err
	}

	size, err := strconv.Atoi(res[1].(string))
	if err != nil {
		return info, err
	}

	info.Key = key
	info.Modified = time.Unix(int64(modified), 0)
	info.Size = int64(size)
	info.IsTerminal = true

	return info, nil
}

// EnvTLS holds the Porkbun credentials used to solve DNS-01 challenges.
type EnvTLS struct {
	PorkbunAPIKey    string `env:"PORKBUN_API_KEY,required"`
	PorkbunAPISecret string `env:"PORKBUN_API_SECRET,required"`
}

// TLSConfig obtains certificates for domain over ACME DNS-01, sharing certificate
// storage and issuance locks through redis.
func TLSConfig(ctx context.Context, domain string, rdb *redis.Client) (*tls.Config, error) {
	env := EnvTLS{}
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, err
	}

	certmagic.DefaultACME.DNS01Solver = &certmagic.DNS01Solver{
		DNSProvider: &porkbun.Provider{
			APIKey:       env.PorkbunAPIKey,
			APISecretKey: env.PorkbunAPISecret,
		},
	}

	certmagic.Default.Storage = newStorage(rdb)

	return certmagic.TLS([]string{domain})
}
