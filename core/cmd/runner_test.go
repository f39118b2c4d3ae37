package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/tradebot/core/config"
	coretelegram "github.com/m3rciful/tradebot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	opts coretelegram.RunOptions
}

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("TRADEBOT_CONFIG", "/etc/env.yaml")

	cases := []struct {
		explicit, env, fallback, want string
	}{
		{"cli.yaml", "TRADEBOT_CONFIG", "config.yaml", "cli.yaml"},
		{"", "TRADEBOT_CONFIG", "config.yaml", "/etc/env.yaml"},
		{"", "UNSET_CONFIG_VAR", "config.yaml", "config.yaml"},
	}
	for _, tc := range cases {
		got, err := ResolveConfigPath(tc.explicit, tc.env, tc.fallback)
		if err != nil || got != tc.want {
			t.Errorf("ResolveConfigPath(%q, %q, %q) = %q, %v; want %q", tc.explicit, tc.env, tc.fallback, got, err, tc.want)
		}
	}
	if _, err := ResolveConfigPath("", "UNSET_CONFIG_VAR", ""); err == nil {
		t.Fatal("expected error without any path")
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var calls []string
	opts := coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { calls = append(calls, "start"); return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { calls = append(calls, "stop"); return nil },
	}
	var loaded string
	err := Run(context.Background(), Options{
		ConfigPath: "bot.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loaded = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app{opts: opts}, nil },
		ShutdownLogger: func() error { calls = append(calls, "logger"); return nil },
		RunTelegram: func(ctx context.Context, o coretelegram.RunOptions) error {
			if err := o.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return o.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loaded != "bot.yaml" {
		t.Fatalf("loaded %q", loaded)
	}
	want := []string{"start", "stop", "logger"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestRunRejectsMissingCoreConfig(t *testing.T) {
	err := Run(context.Background(), Options{
		ConfigPath: "bot.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return nil, errors.New("must not bootstrap")
		},
	})
	if err == nil || err.Error() != "cmd: loaded config is missing core configuration" {
		t.Fatalf("err = %v", err)
	}
}
