package observability_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/davidbz/ember/internal/observability"
)

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { observability.SetLogger(zap.NewNop()) })

	tests := []struct {
		name      string
		cfg       observability.LogConfig
		wantLevel zapcore.Level
		wantErr   string
	}{
		{name: "should default to info json", cfg: observability.LogConfig{}, wantLevel: zapcore.InfoLevel},
		{name: "should honour debug console", cfg: observability.LogConfig{Level: "debug", Format: "console"}, wantLevel: zapcore.DebugLevel},
		{name: "should reject unknown level", cfg: observability.LogConfig{Level: "loud"}, wantErr: "invalid log level"},
		{name: "should reject unknown format", cfg: observability.LogConfig{Format: "xml"}, wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := observability.InitLogger(&tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.Nil(t, logger)
				return
			}

			require.NoError(t, err)
			require.True(t, logger.Core().Enabled(tt.wantLevel))
			require.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}
