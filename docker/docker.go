// Package docker starts throwaway redis and postgres containers for integration tests.
package docker

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	// register postgres driver
	_ "github.com/jackc/pgx/v4/stdlib"
)

// N.B. This isn't the entire Docker Compose spec...
type ComposeFile struct {
	Version  string             `yaml:"version"`
	Services map[string]Service `yaml:"services"`
}

type Service struct {
	Image       string   `yaml:"image"`
	Ports       []string `yaml:"ports"`
	Environment []string `yaml:"environment"`
	Command     string   `yaml:"command"`
}

func configureContainerCleanup(config *docker.HostConfig) {
	config.AutoRemove = true
	config.RestartPolicy = docker.RestartPolicy{Name: "no"}
}

func waitOnDB() error {
	db, err := sql.Open(
		"pgx",
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			viper.GetString("POSTGRES_HOST"),
			viper.GetInt("POSTGRES_PORT"),
			viper.GetString("POSTGRES_USER"),
			viper.GetString("POSTGRES_PASSWORD"),
			viper.GetString("POSTGRES_DB"),
		),
	)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Ping()
}

func waitOnCache() error {
	client := redis.NewClient(&redis.Options{Addr: viper.GetString("REDIS_URL")})
	defer client.Close()
	return client.Ping(client.Context()).Err()
}

func loadComposeFile(path string) (f ComposeFile) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}

	err = yaml.Unmarshal(data, &f)
	if err != nil {
		log.Fatal(err)
	}

	return
}

func getImageAndVersion(s string) ([]string, error) {
	imgAndVer := strings.Split(s, ":")
	if len(imgAndVer) != 2 {
		return nil, errors.New("no version specified for image")
	}
	return imgAndVer, nil
}

func newPool() *dockertest.Pool {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not connect to docker: %s", err)
	}
	pool.MaxWait = 3 * time.Minute
	return pool
}

// InitPostgres starts the compose file's postgres service and points the POSTGRES_* settings at it
func InitPostgres(composePath string) *dockertest.Resource {
	pool := newPool()

	absPath, _ := filepath.Abs(composePath)
	apps := loadComposeFile(absPath)
	imgAndVer, err := getImageAndVersion(apps.Services["postgres"].Image)
	if err != nil {
		log.Fatal(err)
	}

	pg, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: imgAndVer[0],
			Tag:        imgAndVer[1],
			Env:        apps.Services["postgres"].Environment,
		}, configureContainerCleanup,
	)
	if err != nil {
		log.Fatalf("could not start postgres: %s", err)
	}

	// Patch environment to use container
	hostAndPort := strings.Split(pg.GetHostPort("5432/tcp"), ":")
	viper.Set("POSTGRES_HOST", hostAndPort[0])
	viper.Set("POSTGRES_PORT", hostAndPort[1])
	viper.Set("POSTGRES_USER", "postgres")
	viper.Set("POSTGRES_PASSWORD", "")
	viper.Set("POSTGRES_DB", "postgres")
	viper.Set("ENV", "local")

	if err = pool.Retry(waitOnDB); err != nil {
		log.Fatalf("could not connect to postgres: %s", err)
	}

	return pg
}

// InitRedis starts the compose file's redis service and points REDIS_URL at it
func InitRedis(composePath string) *dockertest.Resource {
	pool := newPool()

	absPath, _ := filepath.Abs(composePath)
	apps := loadComposeFile(absPath)
	imgAndVer, err := getImageAndVersion(apps.Services["redis"].Image)
	if err != nil {
		log.Fatal(err)
	}

	rd, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: imgAndVer[0],
			Tag:        imgAndVer[1],
		}, configureContainerCleanup,
	)
	if err != nil {
		log.Fatalf("could not start redis: %s", err)
	}

	// Patch environment to use container
	viper.Set("REDIS_URL", rd.GetHostPort("6379/tcp"))
	viper.Set("REDIS_PASS", "")
	if err = pool.Retry(waitOnCache); err != nil {
		log.Fatalf("could not connect to redis: %s", err)
	}

	return rd
}

// Purge removes the containers
func Purge(resources ...*dockertest.Resource) {
	pool := newPool()
	for _, r := range resources {
		if err := pool.Purge(r); err != nil {
			log.Printf("could not purge %s: %s", r.Container.Name, err)
		}
	}
}
