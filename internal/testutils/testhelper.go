package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Eventually fails the test unless cond holds within timeout
func (h *TestHelper) Eventually(cond func() bool, timeout time.Duration, msgAndArgs ...interface{}) {
	h.T.Helper()
	require.Eventually(h.T, cond, timeout, 2*time.Millisecond, msgAndArgs...)
}
