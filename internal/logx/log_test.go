package logx_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/imgrelay/internal/logx"
)

func TestConfigureLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"all", zerolog.TraceLevel},
		{"Debug", zerolog.DebugLevel},
		{"WARNING", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"none", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logx.Configure(tt.in)
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Fatalf("Configure(%q): level %s, want %s", tt.in, got, tt.want)
		}
	}
}
