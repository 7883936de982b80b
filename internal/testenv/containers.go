// containers.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package testenv starts the backing services the integration tests and the
// local testcontainers launcher run against.
package testenv

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/localnerve/datashare/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	dbName     = "datashare"
	dbUser     = "datashare"
	dbPassword = "datashare"
)

// Options selects the services to start.
type Options struct {
	DBType    string // postgres (default), mariadb or mysql
	WithRedis bool
}

// Containers are the running services and the settings that reach them.
type Containers struct {
	Network *testcontainers.DockerNetwork
	DB      testcontainers.Container
	Redis   testcontainers.Container

	DBType   string
	DBHost   string
	DBPort   string
	RedisURL string
}

// Terminate stops every started container and removes the network.
func (tc *Containers) Terminate(t *testing.T) {
	ctx := context.Background()
	if tc.Redis != nil {
		if err := tc.Redis.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Redis: %v", err)
		}
	}
	if tc.DB != nil {
		if err := tc.DB.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate database: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

// Config returns a configuration pointing at the started services.
func (tc *Containers) Config() *config.Config {
	return &config.Config{
		DBType:               tc.DBType,
		DBHost:               tc.DBHost,
		DBPort:               tc.DBPort,
		DBDatabase:           dbName,
		DBAppUser:            dbUser,
		DBAppPassword:        dbPassword,
		DBAppConnectionLimit: 8,
		AuthMode:             config.AuthModeJWT,
		JWTSecret:            "testenv",
		ArtifactBackend:      config.BackendMemory,
		MaskSecret:           "testenv",
		PreviewRows:          50,
		PreviewCacheSize:     16,
		IngestTimeout:        30 * time.Second,
		RedisURL:             tc.RedisURL,
		NotifyChannel:        "datashare.proposals",
	}
}

// Env lists the settings as environment assignments.
func (tc *Containers) Env() []string {
	cfg := tc.Config()
	env := []string{
		"DB_TYPE=" + cfg.DBType,
		"DB_HOST=" + cfg.DBHost,
		"DB_PORT=" + cfg.DBPort,
		"DB_DATABASE=" + cfg.DBDatabase,
		"DB_APP_USER=" + cfg.DBAppUser,
		"DB_APP_PASSWORD=" + cfg.DBAppPassword,
		"DB_APP_CONNECTION_LIMIT=" + strconv.Itoa(cfg.DBAppConnectionLimit),
	}
	if cfg.RedisURL != "" {
		env = append(env, "REDIS_URL="+cfg.RedisURL)
	}
	return env
}

type dbImage struct {
	image   string
	port    string
	dataDir string
	env     map[string]string
	ready   string
	readyN  int
}

func dbImageFor(dbType string) (dbImage, error) {
	switch dbType {
	case "postgres":
		return dbImage{
			image:   getEnv("DB_IMAGE", "postgres:17-alpine"),
			port:    "5432",
			dataDir: "/var/lib/postgresql/data",
			env: map[string]string{
				"POSTGRES_DB":       dbName,
				"POSTGRES_USER":     dbUser,
				"POSTGRES_PASSWORD": dbPassword,
			},
			ready:  "database system is ready to accept connections",
			readyN: 2,
		}, nil
	case "mariadb", "mysql":
		return dbImage{
			image:   getEnv("DB_IMAGE", "mariadb:11"),
			port:    "3306",
			dataDir: "/var/lib/mysql",
			env: map[string]string{
				"MARIADB_ROOT_PASSWORD": dbPassword,
				"MARIADB_DATABASE":      dbName,
				"MARIADB_USER":          dbUser,
				"MARIADB_PASSWORD":      dbPassword,
			},
			ready:  "ready for connections",
			readyN: 1,
		}, nil
	}
	return dbImage{}, fmt.Errorf("unsupported database type for containers: %s", dbType)
}

// Start launches the requested services on a private network. On error,
// anything already started is terminated.
func Start(ctx context.Context, t *testing.T, opts Options) (*Containers, error) {
	if opts.DBType == "" {
		opts.DBType = "postgres"
	}
	spec, err := dbImageFor(opts.DBType)
	if err != nil {
		return nil, err
	}

	tc := &Containers{DBType: opts.DBType}

	nw, err := network.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	tc.Network = nw

	if exists, err := imageExists(ctx, spec.image); err == nil && !exists {
		logMessage(t, "Image %s not present, pulling...", spec.image)
	}

	tcpDBPort, err := nat.NewPort("tcp", spec.port)
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to create database port: %w", err)
	}
	dbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			ExposedPorts: []string{string(tcpDBPort)},
			Env:          spec.env,
			WaitingFor: wait.ForAll(
				wait.ForLog(spec.ready).WithOccurrence(spec.readyN),
				wait.ForListeningPort(tcpDBPort),
			).WithStartupTimeout(90 * time.Second),
			Networks: []string{nw.Name},
			NetworkAliases: map[string][]string{
				nw.Name: {"db"},
			},
			HostConfigModifier: func(hostConfig *container.HostConfig) {
				hostConfig.Tmpfs = map[string]string{spec.dataDir: "rw"}
			},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to start database: %w", err)
	}
	tc.DB = dbContainer

	host, err := dbContainer.Host(ctx)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	mapped, err := dbContainer.MappedPort(ctx, tcpDBPort)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	tc.DBHost = host
	tc.DBPort = mapped.Port()
	logMessage(t, "DB_HOST=%s DB_PORT=%s", tc.DBHost, tc.DBPort)

	if opts.WithRedis {
		tcpRedisPort, err := nat.NewPort("tcp", "6379")
		if err != nil {
			tc.Terminate(t)
			return nil, fmt.Errorf("failed to create redis port: %w", err)
		}
		redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        getEnv("REDIS_IMAGE", "redis:7-alpine"),
				ExposedPorts: []string{string(tcpRedisPort)},
				WaitingFor:   wait.ForListeningPort(tcpRedisPort).WithStartupTimeout(30 * time.Second),
				Networks:     []string{nw.Name},
			},
			Started: true,
		})
		if err != nil {
			tc.Terminate(t)
			return nil, fmt.Errorf("failed to start redis: %w", err)
		}
		tc.Redis = redisContainer

		redisHost, err := redisContainer.Host(ctx)
		if err != nil {
			tc.Terminate(t)
			return nil, err
		}
		redisPort, err := redisContainer.MappedPort(ctx, tcpRedisPort)
		if err != nil {
			tc.Terminate(t)
			return nil, err
		}
		tc.RedisURL = fmt.Sprintf("redis://%s:%s/0", redisHost, redisPort.Port())
		logMessage(t, "REDIS_URL=%s", tc.RedisURL)
	}

	return tc, nil
}

func imageExists(ctx context.Context, imageName string) (bool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false, err
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageName {
				return true, nil
			}
		}
	}

	return false, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
