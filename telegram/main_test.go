package telegram

import (
	"os"
	"testing"

	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}
