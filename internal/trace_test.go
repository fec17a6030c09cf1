package internal

import (
	"context"
	"testing"
)

func TestOTLPExporterOptions(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      OTLPConfig
		wantErr  bool
		wantOpts int
	}{
		{name: "insecure", cfg: OTLPConfig{URL: "http://collector:4318"}, wantOpts: 2},
		{name: "tls", cfg: OTLPConfig{URL: "https://collector"}, wantOpts: 1},
		{name: "basic auth", cfg: OTLPConfig{URL: "https://collector", User: "u", Pass: "p"}, wantOpts: 2},
		{name: "user without pass", cfg: OTLPConfig{URL: "https://collector", User: "u"}, wantOpts: 1},
		{name: "trailing slash", cfg: OTLPConfig{URL: "http://collector/"}, wantOpts: 2},
		{name: "path", cfg: OTLPConfig{URL: "http://collector/v1/traces"}, wantErr: true},
		{name: "no scheme", cfg: OTLPConfig{URL: "collector:4318"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := tc.cfg.exporterOptions()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %d options", len(opts))
				}
				return
			}
			if err != nil {
				t.Fatalf("exporterOptions: %s", err)
			}
			if len(opts) != tc.wantOpts {
				t.Fatalf("got %d options want %d", len(opts), tc.wantOpts)
			}
		})
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, task := StartTask(context.Background(), "task")
	defer task.End()
	ctx, span := StartSpan(ctx, "span")
	Logf(ctx, "test", "hello %d", 1)
	span.RecordError(context.Canceled)
	span.End()
}
