package sim

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	// The kernel logs every event at debug level and run boundaries at info.
	// Set KMCSIM_TEST_LOG=debug to see them: KMCSIM_TEST_LOG=debug go test ./sim/... -v
	level := logrus.WarnLevel
	if l, err := logrus.ParseLevel(os.Getenv("KMCSIM_TEST_LOG")); err == nil {
		level = l
	}
	logrus.SetLevel(level)
	os.Exit(m.Run())
}
