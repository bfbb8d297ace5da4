package httpapi_test

import (
	"os"
	"testing"

	"plantgrid/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunHelperProcess()
	os.Exit(m.Run())
}
