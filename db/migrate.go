package migrate

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/mikeydub/go-union/service/persist/postgres"
	"github.com/mikeydub/go-union/util"
)

const EnrichmentMigrations = "./db/migrations/enrichment"

// RunEnrichmentDBMigration brings the enrichment_records schema up to date
func RunEnrichmentDBMigration(opts ...postgres.ConnectionOption) error {
	client, err := postgres.NewClient(opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	m, err := RunMigration(client, EnrichmentMigrations)
	if m != nil {
		defer m.Close()
	}
	if err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// RunMigration runs all migrations in the specified directory
func RunMigration(client *sql.DB, file string) (*migrate.Migrate, error) {
	m, err := newMigrateInstance(client, file)
	if err != nil {
		return nil, err
	}

	return m, m.Up()
}

// RunMigrationToVersion runs migrations in the specified directory, up to (and including) the
// specified migration version number
func RunMigrationToVersion(client *sql.DB, file string, toVersion uint) (*migrate.Migrate, error) {
	m, err := newMigrateInstance(client, file)
	if err != nil {
		return nil, err
	}

	return m, m.Migrate(toVersion)
}

// Rollback reverts the given number of migrations
func Rollback(client *sql.DB, file string, steps int) (*migrate.Migrate, error) {
	m, err := newMigrateInstance(client, file)
	if err != nil {
		return nil, err
	}

	return m, m.Steps(-steps)
}

func newMigrateInstance(client *sql.DB, file string) (*migrate.Migrate, error) {
	dir, err := util.FindFile(file, 3)
	if err != nil {
		return nil, err
	}

	d, err := pgdriver.WithInstance(client, &pgdriver.Config{})
	if err != nil {
		return nil, err
	}

	return migrate.NewWithDatabaseInstance("file://"+dir, "postgres", d)
}
