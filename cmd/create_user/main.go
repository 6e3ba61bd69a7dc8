package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"fintrack/pkg/auth"
	"fintrack/pkg/config"
	"fintrack/pkg/database"
	"fintrack/pkg/password"
	"fintrack/pkg/token"
)

func main() {
	if len(os.Args) < 5 {
		fmt.Println("usage: go run ./cmd/create_user <username> <email> <password> <full name>")
		os.Exit(2)
	}
	username, email, pw, fullName := os.Args[1], os.Args[2], os.Args[3], os.Args[4]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer st.Close(context.Background())
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	codec, err := token.NewCodec(token.Options{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	svc := auth.NewService(st, st, st, codec, password.Bcrypt{Cost: cfg.BcryptCost}, auth.Options{
		Currency: cfg.DefaultCurrency,
	})

	res, err := svc.Register(ctx, auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: pw,
		FullName: fullName,
	})
	if errors.Is(err, auth.ErrDuplicateIdentity) {
		fmt.Printf("user %s already exists\n", username)
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%s account=%s\n", res.User.Username, res.User.ID, res.Account.ID)
}
