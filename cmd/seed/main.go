package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/branchline/api/internal/auth"
	"github.com/branchline/api/internal/config"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/logger"
)

const storefrontEmail = "storefront@branchline.local"

type seedBranch struct {
	name        string
	description string
	deviceID    string
}

// defaultBranches are created once; existing device ids are left untouched.
var defaultBranches = []seedBranch{
	{name: "الدهان", description: "فرع الدهان الرئيسي", deviceID: "device_dahan_main"},
	{name: "النخيل", description: "فرع النخيل", deviceID: "device_nakheel_main"},
	{name: "الزيت", description: "فرع الزيت", deviceID: "device_zait_main"},
}

func main() {
	// CLI flags
	email := flag.String("email", "", "Admin email address")
	password := flag.String("password", "", "Admin password")
	name := flag.String("name", "", "Admin full name")
	tokenTTL := flag.Duration("storefront-ttl", 365*24*time.Hour, "Lifetime of the printed storefront token")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(logger.Config{Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Fall back to environment variables, then defaults
	*email = firstNonEmpty(*email, os.Getenv("SEED_EMAIL"), "admin@branchline.local")
	*name = firstNonEmpty(*name, os.Getenv("SEED_NAME"), "Branchline Admin")
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *password == "" {
		*password = "password123"
		log.Warn("using default admin password 'password123', change it before going live")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("ping database", zap.Error(err))
	}
	log.Info("connected to database")

	// Seed in a transaction: everything or nothing
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("begin transaction", zap.Error(err))
	}
	defer tx.Rollback(ctx)
	q := database.New(pool).WithTx(tx)

	for _, b := range defaultBranches {
		branch, err := seedBranchRow(ctx, q, b)
		if err != nil {
			log.Fatal("seed branch", zap.String("device_id", b.deviceID), zap.Error(err))
		}
		log.Info("branch ready", zap.String("id", branch.ID.String()), zap.String("device_id", branch.DeviceID))
	}

	if err := q.EnsureAppSettings(ctx); err != nil {
		log.Fatal("seed settings", zap.Error(err))
	}

	admin, err := seedUser(ctx, q, *email, *password, *name, enum.UserRoleAdmin)
	if err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}
	log.Info("admin ready", zap.String("id", admin.ID.String()), zap.String("email", admin.Email))

	storefront, err := seedUser(ctx, q, storefrontEmail, randomSecret(), "Storefront", enum.UserRoleStorefront)
	if err != nil {
		log.Fatal("seed storefront user", zap.Error(err))
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("commit", zap.Error(err))
	}

	token, err := auth.GenerateTokenWithTTL(cfg.JWTSecret, storefront.ID, uuid.Nil, enum.UserRoleStorefront, *tokenTTL)
	if err != nil {
		log.Fatal("issue storefront token", zap.Error(err))
	}
	log.Info("seed completed", zap.Duration("storefront_token_ttl", *tokenTTL))
	fmt.Printf("STOREFRONT_TOKEN=%s\n", token)
}

// seedBranchRow returns the branch owning b.deviceID, creating it when missing.
func seedBranchRow(ctx context.Context, q *database.Queries, b seedBranch) (database.Branch, error) {
	existing, err := q.GetBranchByDeviceID(ctx, b.deviceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Branch{}, fmt.Errorf("check branch: %w", err)
	}
	return q.CreateBranch(ctx, database.CreateBranchParams{
		Name:        b.name,
		Description: pgtype.Text{String: b.description, Valid: true},
		DeviceID:    b.deviceID,
		IsActive:    true,
	})
}

func seedUser(ctx context.Context, q *database.Queries, email, password, fullName, role string) (database.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return database.User{}, fmt.Errorf("hash password: %w", err)
	}
	return q.UpsertUser(ctx, database.UpsertUserParams{
		Email:          email,
		HashedPassword: string(hashed),
		FullName:       fullName,
		Role:           role,
	})
}

func randomSecret() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
