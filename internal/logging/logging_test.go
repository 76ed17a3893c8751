package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_BuildsDevelopmentLogger(t *testing.T) {
	l, err := New(WithDevelopment(true), WithLevel(zapcore.DebugLevel), WithName("test"))
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Infow("hello", "k", "v")
	_ = l.Sync()
}

func TestLogger_NamedAndWith_ReturnNewInstances(t *testing.T) {
	base := NewNop()
	child := base.Named("engine").With("tx", 1)
	assert.NotSame(t, base, child)
	child.Debugw("tick")
}

func TestNewNop_NeverPanics(t *testing.T) {
	l := NewNop()
	l.Debugw("d")
	l.Infow("i")
	l.Warnw("w")
	l.Errorw("e")
	assert.NoError(t, l.Sync())
}
