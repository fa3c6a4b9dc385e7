package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:50051", cfg.GRPCAddr())
	assert.Equal(t, 10*time.Second, cfg.GRPCRequestTimeout)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, Booking{MinDuration: 15, MaxDuration: 120, DefaultDuration: 45, Location: time.UTC}, cfg.Booking)
	assert.Equal(t, Policy{
		CancelNotice:        2 * time.Hour,
		RescheduleNotice:    24 * time.Hour,
		FullRefundNotice:    24 * time.Hour,
		PartialRefundNotice: 2 * time.Hour,
		PartialRefundRatio:  0.5,
	}, cfg.Policy)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.RedisLockTTL)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONSULTD_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("CONSULTD_DATABASE_DRIVER", "memory")
	t.Setenv("CONSULTD_POLICY_RESCHEDULE_NOTICE", "48h")
	t.Setenv("CONSULTD_BOOKING_TIME_ZONE", "Africa/Lagos")
	t.Setenv("CONSULTD_BOOKING_DEFAULT_DURATION", "30")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CONSULTD_REDIS_ADDR", "localhost:6379")
	t.Setenv("CONSULTD_OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6000", cfg.GRPCAddr())
	assert.Equal(t, "memory", cfg.DatabaseDriver)
	assert.Equal(t, 48*time.Hour, cfg.Policy.RescheduleNotice)
	assert.Equal(t, "Africa/Lagos", cfg.Booking.Location.String())
	assert.Equal(t, 30, cfg.Booking.DefaultDuration)
	assert.Equal(t, "a:9092,b:9092", cfg.KafkaBrokers)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"duration":          {"CONSULTD_SHUTDOWN_TIMEOUT", "soon"},
		"time zone":         {"CONSULTD_BOOKING_TIME_ZONE", "Mars/Olympus"},
		"ratio":             {"CONSULTD_POLICY_PARTIAL_REFUND_RATIO", "1.5"},
		"driver":            {"CONSULTD_DATABASE_DRIVER", "sqlite"},
		"tiers":             {"CONSULTD_POLICY_PARTIAL_REFUND_NOTICE", "48h"},
		"max below default": {"CONSULTD_BOOKING_MAX_DURATION", "30"},
		"min above default": {"CONSULTD_BOOKING_MIN_DURATION", "60"},
		"zero min":          {"CONSULTD_BOOKING_MIN_DURATION", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_AcceptsConsistentDurationBounds(t *testing.T) {
	t.Setenv("CONSULTD_BOOKING_MAX_DURATION", "30")
	t.Setenv("CONSULTD_BOOKING_DEFAULT_DURATION", "30")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Booking{MinDuration: 15, MaxDuration: 30, DefaultDuration: 30, Location: cfg.Booking.Location}, cfg.Booking)
}
