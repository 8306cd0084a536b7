package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/testutil"
)

func TestNormalizeAddrs(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, normalizeAddrs([]string{" a:1 ", "", "b:2", "  "}))
	assert.Empty(t, normalizeAddrs(nil))
}

func TestResolveRedisTarget(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.RedisConfig
		wantMode     redisMode
		wantAddrs    []string
		wantUser     string
		wantPassword string
		wantDB       int
		wantTLS      bool
		wantErr      bool
	}{
		{
			name:         "direct host port",
			cfg:          config.RedisConfig{URI: " cache:6379 ", Password: "default", DB: 2},
			wantMode:     redisModeDirect,
			wantAddrs:    []string{"cache:6379"},
			wantPassword: "default",
			wantDB:       2,
		},
		{
			name:         "direct url with credentials",
			cfg:          config.RedisConfig{URI: "redis://svc:pw@cache:6380/3", Password: "default"},
			wantMode:     redisModeDirect,
			wantAddrs:    []string{"cache:6380"},
			wantUser:     "svc",
			wantPassword: "pw",
			wantDB:       3,
		},
		{
			name:         "direct tls url keeps configured password",
			cfg:          config.RedisConfig{URI: "rediss://cache:6380", Password: "default"},
			wantMode:     redisModeDirect,
			wantAddrs:    []string{"cache:6380"},
			wantPassword: "default",
			wantTLS:      true,
		},
		{
			name:      "cluster nodes",
			cfg:       config.RedisConfig{UseCluster: true, ClusterNodes: []string{" a:1", "", "b:2 "}},
			wantMode:  redisModeCluster,
			wantAddrs: []string{"a:1", "b:2"},
		},
		{
			name:         "cluster falls back to uri",
			cfg:          config.RedisConfig{UseCluster: true, URI: "redis://svc:pw@cache:7000"},
			wantMode:     redisModeCluster,
			wantAddrs:    []string{"cache:7000"},
			wantUser:     "svc",
			wantPassword: "pw",
		},
		{
			name:         "sentinel",
			cfg:          config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s1:26379"}, SentinelMasterName: "primary", Password: "pw"},
			wantMode:     redisModeSentinel,
			wantAddrs:    []string{"s1:26379"},
			wantPassword: "pw",
		},
		{name: "bad url", cfg: config.RedisConfig{URI: "redis://cache:6379/notadb"}, wantErr: true},
		{name: "sentinel without master", cfg: config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s1:26379"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := resolveRedisTarget(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, target.mode)
			assert.Equal(t, tt.wantAddrs, target.opts.Addrs)
			assert.Equal(t, tt.wantUser, target.opts.Username)
			assert.Equal(t, tt.wantPassword, target.opts.Password)
			assert.Equal(t, tt.wantDB, target.opts.DB)
			assert.Equal(t, tt.wantTLS, target.opts.TLSConfig != nil)
			assert.NotContains(t, target.describe(), "pw")
		})
	}
}

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	dsn := postgresDSN(config.DBConfig{Host: "db", Port: 5432, User: "portal", Password: "p@ss/word", Name: "portal", SSLMode: "require"})
	assert.Equal(t, "postgres://portal:p%40ss%2Fword@db:5432/portal?sslmode=require", dsn)
}

func TestConnectRedis_Direct(t *testing.T) {
	mr, _ := testutil.NewMiniRedis(t)

	for _, uri := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		client, err := ConnectRedis(context.Background(), DatabaseConfig{
			RedisConfig: config.RedisConfig{URI: uri},
			Logger:      discardLogger(),
		})
		require.NoError(t, err, uri)
		require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
		require.NoError(t, client.Close())
	}
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConnectRedis_Misconfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
	}{
		{name: "direct without uri", cfg: config.RedisConfig{URI: " "}},
		{name: "sentinel without nodes", cfg: config.RedisConfig{UseSentinel: true}},
		{name: "cluster without nodes", cfg: config.RedisConfig{UseCluster: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConnectRedis(context.Background(), DatabaseConfig{RedisConfig: tt.cfg})
			assert.Error(t, err)
		})
	}
}
