package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/datashare/internal/testenv"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var dbType string
	flag.StringVar(&dbType, "db", "postgres", "database type: postgres, mariadb or mysql")
	var withRedis bool
	flag.BoolVar(&withRedis, "redis", true, "also start redis for proposal notifications")
	flag.Parse()

	usage := `
Run the datashare backing services in containers for local development.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH] [-db TYPE] [-redis=false]

ENV_FILE_PATH: path to a .env file with DB_IMAGE or REDIS_IMAGE overrides

example
  testcontainers -f /path/to/something/.env -db mariadb
`
	// if -h flag print usage and return
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	}

	containers, err := testenv.Start(context.Background(), nil, testenv.Options{DBType: dbType, WithRedis: withRedis})
	if err != nil {
		log.Fatalf("Failed to create test containers: %v\n", err)
	}

	fmt.Println("\n# export these to run the server against the containers")
	for _, kv := range containers.Env() {
		fmt.Println(kv)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigs
	log.Printf("\nReceived signal: %v, terminating test containers...\n", sig)
	containers.Terminate(nil)
}
