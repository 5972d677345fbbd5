package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	testopt "github.com/ethereum-optimism/infra/op-testopt"
	"github.com/ethereum-optimism/infra/op-testopt/exitcodes"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcodes.Success},
		{"runtime error", testopt.NewRuntimeError(errors.New("bad config")), exitcodes.RuntimeErr},
		{"wrapped runtime error", fmt.Errorf("start: %w", testopt.NewRuntimeError(errors.New("panic"))), exitcodes.RuntimeErr},
		{"test failure", testopt.NewTestFailureError("1 failed"), exitcodes.TestFailure},
		{"other", errors.New("unknown"), exitcodes.TestFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
