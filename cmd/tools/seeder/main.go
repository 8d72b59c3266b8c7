package main

import (
	"context"
	"errors"
	"flag"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/product"
	"github.com/noah-isme/backend-pos/internal/user"
)

func main() {
	bills := flag.Int("bills", 20, "number of sample bills to create")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	adminPassword := flag.String("admin-password", "password123", "password for seeded accounts")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if *migrate {
		if err := db.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	ctx := logger.WithContext(context.Background())
	pool, err := db.Connect(ctx, db.Options{URL: dbURL, AppName: "pos-seeder"}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	seedUsers(ctx, logger, user.NewPGStore(pool), *adminPassword)

	products, err := product.NewService(product.ServiceConfig{Store: product.NewPGStore(pool), MaxLimit: 100})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise product service")
	}
	ids := seedProducts(ctx, logger, products)

	billingService, err := billing.NewService(billing.ServiceConfig{Store: billing.NewPGStore(pool)})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise billing service")
	}
	seedBills(ctx, logger, billingService, ids, *bills)

	logger.Info().Msg("seeding completed")
}

func seedUsers(ctx context.Context, logger zerolog.Logger, store user.Store, password string) {
	hash, err := user.HashPassword(password)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash password")
	}
	accounts := []user.NewUser{
		{Username: "Admin", Email: "admin@pos.local", Phone: "+620000000001", Role: user.RoleAdmin},
		{Username: "Kasir Satu", Email: "kasir1@pos.local", Phone: "+620000000002", Role: user.RoleStaff},
		{Username: "Kasir Dua", Email: "kasir2@pos.local", Phone: "+620000000003", Role: user.RoleStaff},
	}
	for _, acc := range accounts {
		acc.PasswordHash = hash
		_, err := store.Create(ctx, acc)
		switch {
		case errors.Is(err, user.ErrDuplicateEmail), errors.Is(err, user.ErrDuplicatePhone):
			logger.Info().Str("email", acc.Email).Msg("user exists, skipped")
		case err != nil:
			logger.Error().Err(err).Str("email", acc.Email).Msg("seed user")
		default:
			logger.Info().Str("email", acc.Email).Str("role", string(acc.Role)).Msg("user seeded")
		}
	}
}

func seedProducts(ctx context.Context, logger zerolog.Logger, svc *product.Service) []string {
	catalog := []struct {
		name  string
		price string
	}{
		{"Kopi Susu", "18000"},
		{"Es Teh Manis", "6000"},
		{"Roti Bakar Coklat", "15000"},
		{"Nasi Goreng", "25000"},
		{"Mie Ayam", "20000"},
		{"Air Mineral", "4000"},
		{"Pisang Goreng", "10000"},
		{"Jus Alpukat", "17500"},
	}
	for _, item := range catalog {
		_, err := svc.Add(ctx, product.CreateInput{Name: item.name, Price: decimal.RequireFromString(item.price)})
		var appErr *common.AppError
		switch {
		case errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusConflict:
			logger.Info().Str("product", item.name).Msg("product exists, skipped")
		case err != nil:
			logger.Error().Err(err).Str("product", item.name).Msg("seed product")
		default:
			logger.Info().Str("product", item.name).Msg("product seeded")
		}
	}

	res, err := svc.List(ctx, product.ListParams{Page: 1, Limit: 100})
	if err != nil {
		logger.Fatal().Err(err).Msg("list products")
	}
	ids := make([]string, 0, len(res.Items))
	for _, p := range res.Items {
		ids = append(ids, p.ID)
	}
	return ids
}

func seedBills(ctx context.Context, logger zerolog.Logger, svc *billing.Service, productIDs []string, n int) {
	if len(productIDs) == 0 || n <= 0 {
		return
	}
	created := 0
	for range n {
		picks := rand.Perm(len(productIDs))[:1+rand.IntN(min(3, len(productIDs)))]
		lines := make([]billing.LineInput, 0, len(picks))
		for _, idx := range picks {
			lines = append(lines, billing.LineInput{ProductID: productIDs[idx], Quantity: 1 + rand.IntN(4)})
		}
		if _, err := svc.Calculate(ctx, lines); err != nil {
			logger.Error().Err(err).Msg("seed bill")
			continue
		}
		created++
	}
	logger.Info().Int("bills", created).Msg("bills seeded")
}
