package application_test

import (
	"os"
	"testing"

	"digitlotto/config"
)

func TestMain(m *testing.M) {
	testConfig := config.NewTestConfig()
	testConfig.OperatorIdentity = "pk-operator"
	config.SetTestConfig(testConfig)

	_ = config.Get()

	code := m.Run()
	os.Exit(code)
}
