package errcode

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", UnknownBus, UnknownBus},
		{"wrapped code", errors.Wrap(UnknownBus, "i2c1"), UnknownBus},
		{"E", Wrap(SetupTimeout, "bme680.init", context.DeadlineExceeded), SetupTimeout},
		{"E over inner code", Wrap(SetupFailure, "sht31.init", UnknownBus), SetupFailure},
		{"New", New(AllBusesFaulted, "slow", "max44009,sht31"), AllBusesFaulted},
		{"plain", errors.New("boom"), Error},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Of(tc.err))
		})
	}
}

func TestE_MessageAndUnwrap(t *testing.T) {
	err := Wrap(SetupTimeout, "bme680.init", context.DeadlineExceeded)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Contains(t, err.Error(), "bme680.init: setup_timeout")
	require.True(t, Is(err, SetupTimeout))
	require.False(t, Is(nil, SetupTimeout))
}
