package main

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "log level flag",
			args:    []string{"--log-level", "loud"},
			wantErr: "invalid log level",
		},
		{
			name:    "drift rate from environment",
			env:     map[string]string{"BETSYNC_DRIFT_RATE": "0"},
			wantErr: "drift-rate must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cmd := newRootCmd(viper.New())
			cmd.SetArgs(append([]string{}, tt.args...))
			cmd.SilenceErrors = true

			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
