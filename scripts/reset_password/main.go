package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"fintrack/pkg/auth"
	"fintrack/pkg/config"
	"fintrack/pkg/database"
	"fintrack/pkg/password"
)

// Resets a password out of band and revokes every open session of the user.
func main() {
	username := flag.String("username", "", "username to reset")
	newPassword := flag.String("password", "", "new plaintext password (min 6 chars)")
	flag.Parse()
	if *username == "" || *newPassword == "" {
		log.Fatal("--username and --password are required")
	}
	if err := auth.CheckPassword(*newPassword); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close(context.Background())

	user, err := st.FindByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("user not found: %v", err)
	}
	hash, err := password.Bcrypt{Cost: cfg.BcryptCost}.Hash(*newPassword)
	if err != nil {
		log.Fatalf("hash: %v", err)
	}
	if err := st.UpdatePassword(ctx, user.ID, hash); err != nil {
		log.Fatalf("update failed: %v", err)
	}
	if err := st.RevokeAll(ctx, user.ID); err != nil {
		log.Fatalf("revoke sessions: %v", err)
	}
	fmt.Printf("Password reset for user %s\n", user.Username)
}
