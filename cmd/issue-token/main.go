// Command issue-token prints a bearer token for the inventory API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"steam-inventory/internal/auth"
	"steam-inventory/internal/config"
	"steam-inventory/internal/services/inventory"
)

func main() {
	steamID := flag.String("steam-id", "", "SteamID64 the token acts for (defaults to steam.steam_id)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	raw := *steamID
	if raw == "" {
		raw = fmt.Sprint(cfg.Steam.SteamID)
	}
	owner, err := inventory.ParseSteamID(raw)
	if err != nil || owner == 0 {
		logrus.WithField("steam_id", raw).Fatal("a non-zero SteamID64 is required")
	}

	token, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).GenerateToken(owner)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to sign token")
	}
	fmt.Fprintln(os.Stdout, token)
}
