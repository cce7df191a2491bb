package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/db"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/logging"
)

const (
	doctorCount  = 25
	overrideDays = 28
)

var specialties = []string{
	"Infectious Disease",
	"HIV Medicine",
	"Internal Medicine",
	"General Practice",
	"Dermatology",
	"Psychiatry",
	"Pharmacology",
	"Obstetrics",
}

var leaveReasons = []string{
	"On leave",
	"Conference",
	"Training",
	"Public holiday",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, "seed")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	applied, err := db.Migrate(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	logger.Info().Int("applied", applied).Msg("migrations up to date")

	today := appointment.DateOf(time.Now(), cfg.Location)
	if err := seedDoctors(context.Background(), pool, doctorCount, today, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, today time.Time, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, verified, accepting_bookings)
			VALUES ($1, $2, $3, $4, true)
		`, id, "Dr. "+gofakeit.Name(), gofakeit.RandomString(specialties), gofakeit.Number(1, 10) > 1)
		if err != nil {
			return err
		}

		if err := seedSchedule(ctx, tx, id); err != nil {
			return err
		}
		if err := seedOverrides(ctx, tx, id, today); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

// seedSchedule gives the doctor a Monday to Friday week, with Saturday
// mornings for some and Sunday always off.
func seedSchedule(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID) error {
	start := appointment.NewClock(gofakeit.Number(7, 9), 0)
	end := appointment.NewClock(gofakeit.Number(16, 18), 0)
	slot := gofakeit.RandomInt([]int{15, 20, 30, 45})
	saturday := gofakeit.Bool()

	for day := 1; day <= 7; day++ {
		working := day <= 5 || (day == 6 && saturday)
		dayEnd := end
		if day == 6 {
			dayEnd = appointment.NewClock(12, 0)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctor_schedules (id, doctor_id, day_of_week, is_working, start_time, end_time, slot_duration_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), doctorID, day, working, start.String(), dayEnd.String(), slot)
		if err != nil {
			return err
		}
	}
	return nil
}

// seedOverrides scatters days off and shortened days over the coming weeks.
func seedOverrides(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, today time.Time) error {
	for offset := 1; offset <= overrideDays; offset++ {
		roll := gofakeit.Number(1, 20)
		if roll > 2 {
			continue
		}

		date := today.AddDate(0, 0, offset)
		var err error
		if roll == 1 {
			_, err = tx.Exec(ctx, `
				INSERT INTO doctor_availability_overrides (id, doctor_id, date, is_available, reason)
				VALUES ($1, $2, $3, false, $4)
			`, uuid.New(), doctorID, date, gofakeit.RandomString(leaveReasons))
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO doctor_availability_overrides (id, doctor_id, date, is_available, start_time, end_time)
				VALUES ($1, $2, $3, true, $4, $5)
			`, uuid.New(), doctorID, date, "10:00", "14:00")
		}
		if err != nil {
			return err
		}
	}
	return nil
}
