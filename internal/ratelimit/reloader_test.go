package ratelimit

import (
	"context"
	"errors"
	"testing"

	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/models"
)

type fakeConfigStore struct {
	configs []*models.RatelimitConfig
	err     error
}

func (f *fakeConfigStore) GetAll(_ context.Context) ([]*models.RatelimitConfig, error) {
	return f.configs, f.err
}

func TestReloaderAppliesConfig(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t, DefaultRates())
	store := &fakeConfigStore{
		configs: []*models.RatelimitConfig{
			{Bucket: BucketLogin, Rate: "1-M", Enabled: true},
			{Bucket: BucketCreateTask, Rate: "30-M", Enabled: false},
			{Bucket: "custom_bucket", Rate: "7-H", Enabled: true},
		},
	}

	r := NewReloader(l, store, zap.NewNop(), 0)
	r.Start(context.Background())

	if rate, ok := l.Rate(BucketLogin); !ok || rate != "1-M" {
		t.Errorf("Rate(login) = %q, %v; want 1-M applied from config", rate, ok)
	}
	if _, ok := l.Rate(BucketCreateTask); ok {
		t.Error("Rate(create_task) still configured, want removed for disabled bucket")
	}
	if rate, ok := l.Rate("custom_bucket"); !ok || rate != "7-H" {
		t.Errorf("Rate(custom_bucket) = %q, %v; want new bucket created", rate, ok)
	}
	if rate, ok := l.Rate(BucketSendMessage); !ok || rate != "10-M" {
		t.Errorf("Rate(send_message) = %q, %v; want untouched default", rate, ok)
	}
}

func TestReloaderKeepsRatesOnStoreError(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t, DefaultRates())
	store := &fakeConfigStore{err: errors.New("connection refused")}

	r := NewReloader(l, store, zap.NewNop(), 0)
	r.Start(context.Background())

	if rate, ok := l.Rate(BucketLogin); !ok || rate != "10-M" {
		t.Errorf("Rate(login) = %q, %v; want default kept on load error", rate, ok)
	}
}

func TestReloaderKeepsRateOnParseError(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(t, DefaultRates())
	store := &fakeConfigStore{
		configs: []*models.RatelimitConfig{
			{Bucket: BucketLogin, Rate: "garbage", Enabled: true},
		},
	}

	r := NewReloader(l, store, zap.NewNop(), 0)
	r.Start(context.Background())

	if rate, ok := l.Rate(BucketLogin); !ok || rate != "10-M" {
		t.Errorf("Rate(login) = %q, %v; want previous rate kept on parse error", rate, ok)
	}
}

var _ ConfigStore = (*fakeConfigStore)(nil)
