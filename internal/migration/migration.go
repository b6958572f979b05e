package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	paymentdomain "github.com/monstrox/monstro/internal/payment/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	socialdomain "github.com/monstrox/monstro/internal/social/domain"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	supportdomain "github.com/monstrox/monstro/internal/support/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema. It is safe to call on
// every start.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table, in dependency order, for dialects without SQL
// migrations.
func Models() []any {
	models := []any{
		&authdomain.User{},
		&locationdomain.Location{}, &locationdomain.LocationStaff{},
		&memberdomain.Member{}, &memberdomain.MemberLocation{}, &memberdomain.PushToken{},
		&auditdomain.AuditLog{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{}, &invoicedomain.InvoiceItem{},
		&paymentdomain.Transaction{},
		&classdomain.ClassSession{}, &classdomain.Reservation{},
		&achievementdomain.Achievement{}, &achievementdomain.MemberAchievement{},
	}
	models = append(models, socialdomain.Models()...)
	return append(models, supportdomain.Models()...)
}

// AutoMigrate creates the schema from the GORM models. Used for sqlite and
// mysql, where the embedded postgres SQL does not apply.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
