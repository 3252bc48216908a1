package sim

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	// Step and checkpoint transitions log at info; keep test output quiet.
	// VOIDSIM_DEBUG_TESTS=1 go test ./sim/... -v shows them.
	if os.Getenv("VOIDSIM_DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}
