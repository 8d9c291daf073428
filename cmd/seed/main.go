package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

type procedure struct {
	name     string
	code     string
	price    int64 // cents
	duration int   // minutes, zero means the default duration
}

var procedures = []procedure{
	{"Consulta", "10101012", 15000, 30},
	{"Retorno", "10101020", 0, 15},
	{"Eletrocardiograma", "40101010", 8000, 20},
	{"Teste ergométrico", "40101045", 22000, 45},
	{"Ecocardiograma", "40901114", 35000, 40},
	{"Holter 24h", "40101061", 28000, 0},
	{"Avaliação pré-operatória", "10101039", 18000, 60},
}

var specialties = []string{
	"Cardiology",
	"Dermatology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Pediatrics",
}

var billingTypes = []string{"private", "Unimed", "Bradesco Saúde", "SulAmérica", "Amil"}

var paymentMethods = []string{"card", "cash", "pix", "insurance"}

func main() {
	_ = godotenv.Load()
	logger := logging.New(&logging.Config{Level: "info", Console: true}).With("component", "seed")
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool, *logging.Logger) error
	}{
		{"practitioners", func(ctx context.Context, p *pgxpool.Pool, l *logging.Logger) error {
			return seedPractitioners(ctx, p, l, 12)
		}},
		{"procedures", seedProcedures},
		{"patients", func(ctx context.Context, p *pgxpool.Pool, l *logging.Logger) error {
			return seedPatients(ctx, p, l, 2000)
		}},
	}
	for _, s := range steps {
		if err := s.fn(context.Background(), pool, logger); err != nil {
			logger.Error("seed failed", "step", s.name, "error", err.Error())
			os.Exit(1)
		}
	}

	logger.Info("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, logger *logging.Logger, count int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), "Dr. "+gofakeit.Name(), gofakeit.RandomString(specialties))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("practitioners seeded", "count", count)
	return nil
}

// seedProcedures upserts the fixed catalogue by code so reruns are harmless.
func seedProcedures(ctx context.Context, pool *pgxpool.Pool, logger *logging.Logger) error {
	for _, p := range procedures {
		_, err := pool.Exec(ctx, `
			INSERT INTO procedures (id, name, code, price_cents, duration_minutes)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (code) DO UPDATE
			SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, duration_minutes = EXCLUDED.duration_minutes
		`, uuid.New(), p.name, p.code, p.price, p.duration)
		if err != nil {
			return err
		}
	}
	logger.Info("procedures seeded", "count", len(procedures))
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger *logging.Logger, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, billing_type, payment_method, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(),
				gofakeit.RandomString(billingTypes), gofakeit.RandomString(paymentMethods))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("patients seeded", "done", end, "total", count)
	}
	return nil
}
