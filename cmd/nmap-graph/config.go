package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	storeNeo4j    = "neo4j"
	storePostgres = "postgres"
	storeMemory   = "memory"
)

type config struct {
	Store       string
	Bolt        string
	Neo4jPort   string
	Neo4jUser   string
	Neo4jPass   string
	Neo4jDB     string
	DatabaseURL string
	NmapFile    string
	AttackingIP string
	ProjectID   string
	DLQTopicID  string
	LogLevel    string
}

// Neo4jURI builds the routing URI for the configured bolt address.
func (c config) Neo4jURI() string {
	return fmt.Sprintf("neo4j://%s:%s", c.Bolt, c.Neo4jPort)
}

func (c config) validate() error {
	if c.NmapFile == "" {
		return errors.New("-file is required")
	}
	switch c.Store {
	case storeNeo4j:
		if c.Neo4jPass == "" {
			return errors.New("-password is required for the neo4j store")
		}
	case storePostgres:
		if c.DatabaseURL == "" {
			return errors.New("-database-url is required for the postgres store")
		}
	case storeMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, storeNeo4j, storePostgres, storeMemory)
	}
	if c.DLQTopicID != "" && c.ProjectID == "" {
		return errors.New("-dlq-topic needs PUBSUB_PROJECT_ID")
	}
	return nil
}

// loadConfig reads flags from args. Environment variables supply the
// defaults so a .env file can carry credentials.
func loadConfig(args []string, stderr io.Writer) (config, error) {
	cfg := config{
		ProjectID: getEnv("PUBSUB_PROJECT_ID", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	fs := flag.NewFlagSet("nmap-graph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	stringVar(fs, &cfg.Bolt, "b", "bolt", getEnv("NEO4J_BOLT", "127.0.0.1"), "address of the bolt connector")
	stringVar(fs, &cfg.Neo4jUser, "u", "username", getEnv("NEO4J_USER", "neo4j"), "Neo4j user")
	stringVar(fs, &cfg.Neo4jPass, "p", "password", getEnv("NEO4J_PASSWORD", ""), "Neo4j password")
	stringVar(fs, &cfg.Neo4jPort, "P", "port", getEnv("NEO4J_PORT", "7687"), "port of the bolt connector")
	stringVar(fs, &cfg.NmapFile, "f", "file", getEnv("NMAP_FILE", ""), "nmap report (-oX output or its JSON rendition)")
	stringVar(fs, &cfg.AttackingIP, "ai", "attacking-ip", getEnv("ATTACKING_IP", ""), "IP address of the scanning machine to exclude from import")
	fs.StringVar(&cfg.Neo4jDB, "database", getEnv("NEO4J_DATABASE", ""), "Neo4j database (server default when empty)")
	fs.StringVar(&cfg.Store, "store", getEnv("GRAPH_STORE", storeNeo4j), "graph store: neo4j, postgres or memory")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection string for the postgres store")
	fs.StringVar(&cfg.DLQTopicID, "dlq-topic", getEnv("PUBSUB_DLQ_TOPIC", ""), "Pub/Sub topic receiving hosts that failed to load")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	cfg.Store = strings.ToLower(cfg.Store)
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func stringVar(fs *flag.FlagSet, p *string, short, long, value, usage string) {
	fs.StringVar(p, long, value, usage)
	fs.StringVar(p, short, value, "shorthand for -"+long)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
