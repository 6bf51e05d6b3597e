package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/time/rate"

	"github.com/faithh/faithh/internal/gateway"
	"github.com/faithh/faithh/internal/testutil"
)

func TestComplete_PrimarySucceeds(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "cloud answer")
	local := testutil.NewMockProvider("ollama", "local answer")
	gw := gateway.New([]gateway.Provider{cloud, local}, nil, testutil.DiscardLogger())

	text, provider, err := gw.Complete(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if text != "cloud answer" || provider != "gemini" {
		t.Errorf("got (%q, %q), want cloud answer from gemini", text, provider)
	}
	if local.Calls() != 0 {
		t.Error("fallback should not be reached when primary succeeds")
	}
}

func TestComplete_FailsOverOnUnavailable(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "")
	cloud.FailWith(fmt.Errorf("%w: gemini: boom", gateway.ErrProviderUnavailable))
	local := testutil.NewMockProvider("ollama", "local answer")
	gw := gateway.New([]gateway.Provider{cloud, local}, nil, testutil.DiscardLogger())

	text, provider, err := gw.Complete(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if text != "local answer" || provider != "ollama" {
		t.Errorf("got (%q, %q), want failover to ollama", text, provider)
	}
}

func TestComplete_FailsOverOnTimeout(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "")
	cloud.FailWith(fmt.Errorf("%w: gemini after 90s", gateway.ErrProviderTimeout))
	local := testutil.NewMockProvider("ollama", "local answer")
	gw := gateway.New([]gateway.Provider{cloud, local}, nil, testutil.DiscardLogger())

	_, provider, err := gw.Complete(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if provider != "ollama" {
		t.Errorf("provider = %q, want ollama after timeout failover", provider)
	}
}

func TestComplete_AllProvidersExhausted(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "")
	cloud.FailWith(gateway.ErrProviderUnavailable)
	local := testutil.NewMockProvider("ollama", "")
	local.FailWith(gateway.ErrProviderTimeout)
	gw := gateway.New([]gateway.Provider{cloud, local}, nil, testutil.DiscardLogger())

	_, _, err := gw.Complete(context.Background(), "hello", "")
	if !errors.Is(err, gateway.ErrAllProvidersExhausted) {
		t.Errorf("Complete() = %v, want ErrAllProvidersExhausted", err)
	}
	if cloud.Calls() != 1 || local.Calls() != 1 {
		t.Errorf("calls = (%d, %d), want each provider tried once", cloud.Calls(), local.Calls())
	}
}

func TestComplete_NoProviders(t *testing.T) {
	gw := gateway.New(nil, nil, testutil.DiscardLogger())

	_, _, err := gw.Complete(context.Background(), "hello", "")
	if !errors.Is(err, gateway.ErrAllProvidersExhausted) {
		t.Errorf("Complete() = %v, want ErrAllProvidersExhausted", err)
	}
}

func TestComplete_PreferredProviderTriedFirst(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "cloud answer")
	local := testutil.NewMockProvider("ollama", "local answer")
	gw := gateway.New([]gateway.Provider{cloud, local}, nil, testutil.DiscardLogger())

	text, provider, err := gw.Complete(context.Background(), "hello", "ollama")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if text != "local answer" || provider != "ollama" {
		t.Errorf("got (%q, %q), want preferred ollama", text, provider)
	}
	if cloud.Calls() != 0 {
		t.Error("non-preferred provider should not be called when preferred succeeds")
	}
}

func TestComplete_UnknownPreferenceUsesConfiguredOrder(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "cloud answer")
	gw := gateway.New([]gateway.Provider{cloud}, nil, testutil.DiscardLogger())

	_, provider, err := gw.Complete(context.Background(), "hello", "openai")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if provider != "gemini" {
		t.Errorf("provider = %q, want gemini", provider)
	}
}

func TestComplete_CanceledContext(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "cloud answer")
	gw := gateway.New([]gateway.Provider{cloud}, nil, testutil.DiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := gw.Complete(ctx, "hello", ""); err == nil {
		t.Error("Complete() should fail on canceled context")
	}
}

func TestComplete_RateLimiterApplies(t *testing.T) {
	cloud := testutil.NewMockProvider("gemini", "answer")
	// One token, no refill within the test window.
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	gw := gateway.New([]gateway.Provider{cloud}, limiter, testutil.DiscardLogger())

	if _, _, err := gw.Complete(context.Background(), "first", ""); err != nil {
		t.Fatalf("first Complete() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := gw.Complete(ctx, "second", ""); err == nil {
		t.Error("second Complete() should fail waiting on exhausted limiter")
	}
}

func TestProviders(t *testing.T) {
	gw := gateway.New([]gateway.Provider{
		testutil.NewMockProvider("gemini", ""),
		testutil.NewMockProvider("ollama", ""),
	}, nil, testutil.DiscardLogger())

	names := gw.Providers()
	if len(names) != 2 || names[0] != "gemini" || names[1] != "ollama" {
		t.Errorf("Providers() = %v", names)
	}
}
