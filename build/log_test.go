package build

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// TestParseAndSetDebugLevels checks that global and per-subsystem levels are
// applied and that malformed level strings are rejected.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		expErr    bool
		expLevels map[string]btclog.Level
	}{
		{
			name:  "global level",
			level: "debug",
			expLevels: map[string]btclog.Level{
				"LNWL": btclog.LevelDebug,
				"CSGN": btclog.LevelDebug,
			},
		},
		{
			name:  "global and subsystem",
			level: "info,CSGN=trace",
			expLevels: map[string]btclog.Level{
				"LNWL": btclog.LevelInfo,
				"CSGN": btclog.LevelTrace,
			},
		},
		{
			name:   "unknown subsystem",
			level:  "info,FOO=trace",
			expErr: true,
		},
		{
			name:   "invalid global level",
			level:  "loud",
			expErr: true,
		},
		{
			name:   "malformed pair",
			level:  "LNWL=debug=trace",
			expErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			mgr := NewSubLoggerManager(btclog.NewDefaultHandler(&buf))
			mgr.GenSubLogger("LNWL")
			mgr.GenSubLogger("CSGN")

			err := ParseAndSetDebugLevels(test.level, mgr)
			if test.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			loggers := mgr.SubLoggers()
			for subsystem, level := range test.expLevels {
				require.Equal(
					t, level, loggers[subsystem].Level(),
					subsystem,
				)
			}
		})
	}
}

// TestSubLoggerManagerReuse makes sure asking for the same subsystem twice
// returns the registered logger.
func TestSubLoggerManagerReuse(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mgr := NewSubLoggerManager(btclog.NewDefaultHandler(&buf))

	first := mgr.GenSubLogger("LNWL")
	second := mgr.GenSubLogger("LNWL")
	require.Same(t, first, second)
	require.Equal(t, []string{"LNWL"}, mgr.SupportedSubsystems())

	first.Infof("hello %v", "world")
	require.Contains(t, buf.String(), "LNWL: hello world")
}

// TestLogClosure ensures the closure is only rendered on demand.
func TestLogClosure(t *testing.T) {
	t.Parallel()

	calls := 0
	closure := NewLogClosure(func() string {
		calls++
		return "rendered"
	})
	require.Zero(t, calls)
	require.Equal(t, "rendered", closure.String())
	require.Equal(t, 1, calls)
}
