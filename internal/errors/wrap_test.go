package errors

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"

	crdb "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	baseErr := errors.New("connection refused")
	wrapped := Wrap(baseErr, "failed to execute request")

	require.NotNil(t, wrapped)
	assert.Equal(t, "failed to execute request: connection refused", wrapped.Error())
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, "failed to execute request"))
	assert.Nil(t, Wrapf(nil, "failed to save result %d", 3))
}

func TestWrapf(t *testing.T) {
	baseErr := errors.New("disk full")
	wrapped := Wrapf(baseErr, "failed to save result %d for %s", 42, "scan-a")

	require.NotNil(t, wrapped)
	assert.Equal(t, "failed to save result 42 for scan-a: disk full", wrapped.Error())
}

func TestWrap_KeepsSentinels(t *testing.T) {
	wrapped := Wrap(context.DeadlineExceeded, "failed to execute request")
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
	assert.True(t, crdb.Is(wrapped, context.DeadlineExceeded))

	wrapped = Wrapf(syscall.ECONNRESET, "read %s", "tcp")
	assert.True(t, errors.Is(wrapped, syscall.ECONNRESET))
}

func TestWrap_KeepsTypedCauses(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	wrapped := Wrap(opErr, "failed to execute request")

	var target *net.OpError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "dial", target.Op)
	assert.True(t, errors.Is(wrapped, syscall.ECONNREFUSED))
}
