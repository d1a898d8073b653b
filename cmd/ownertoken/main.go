package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Guizzs26/slotbook/internal/auth"
	"github.com/Guizzs26/slotbook/internal/config"
	"github.com/Guizzs26/slotbook/pkg/infra"
	"github.com/google/uuid"
)

// ownertoken prints a JWT for the owner endpoints, signed with JWT_SECRET.
//
//	ownertoken -sub owner@example.com -shops <uuid>,<uuid> -ttl 24h
func main() {
	sub := flag.String("sub", "", "owner identity")
	shops := flag.String("shops", "", "comma separated shop ids")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := infra.SetupLogger(cfg)

	if cfg.JWTSecret == "" || *sub == "" || *shops == "" {
		logger.Error("JWT_SECRET, -sub and -shops are required")
		os.Exit(2)
	}

	var ids []uuid.UUID
	for _, raw := range strings.Split(*shops, ",") {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			logger.Error("Invalid shop id", "value", raw, "error", err)
			os.Exit(2)
		}
		ids = append(ids, id)
	}

	tok, err := auth.NewAuthenticator(cfg.JWTSecret).Sign(*sub, ids, *ttl)
	if err != nil {
		logger.Error("Failed to sign token", "error", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
