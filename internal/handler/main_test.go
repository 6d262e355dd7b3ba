package handler

import (
	"os"
	"testing"

	"cemtras-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("info", "json", "")
	os.Exit(m.Run())
}
