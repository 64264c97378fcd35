// Package netstore loads a previously materialized road network from
// Postgres. Networks live one per schema: {network}.node carries node ids
// and geographic positions, {network}.link carries directed links between
// them.
package netstore

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
)

// Config identifies the database and network schema to load.
type Config struct {
	Server   string
	Database string
	User     string
	Password string
	Network  string
}

// identPattern restricts the network name to a safe SQL identifier, since
// schema names cannot be bound as query parameters.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Connect opens a connection pool against cfg's database and verifies it
// with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	url := fmt.Sprintf("postgres://%s:%s@%s/%s", cfg.User, cfg.Password, cfg.Server, cfg.Database)
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Load reads the network's nodes and links into a Multigraph projected
// around the node centroid. Links referencing a node id absent from the
// node table are skipped with a warning rather than failing the load.
func Load(ctx context.Context, pool *pgxpool.Pool, network string) (*graph.Multigraph, error) {
	if !identPattern.MatchString(network) {
		return nil, fmt.Errorf("invalid network name %q", network)
	}

	log.Printf("Loading network %s from database...", network)
	start := time.Now()

	type nodeRow struct {
		id       int64
		lat, lon float64
	}
	var nodes []nodeRow
	var sumLat, sumLon float64

	rows, err := pool.Query(ctx, fmt.Sprintf("SELECT id, lat, lon FROM %s.node", network))
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n nodeRow
		if err := rows.Scan(&n.id, &n.lat, &n.lon); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
		sumLat += n.lat
		sumLon += n.lon
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("network %s has no nodes", network)
	}

	g := graph.NewMultigraph(sumLat/float64(len(nodes)), sumLon/float64(len(nodes)))
	for _, n := range nodes {
		g.AddNode(n.id, n.lat, n.lon)
	}
	log.Printf("Loaded %d nodes", len(nodes))

	linkRows, err := pool.Query(ctx, fmt.Sprintf("SELECT id, source, dest FROM %s.link", network))
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer linkRows.Close()

	var linkCount, skipped int
	for linkRows.Next() {
		var id, source, dest int64
		if err := linkRows.Scan(&id, &source, &dest); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		origin, ok := g.NodeByID(source)
		if !ok {
			skipped++
			continue
		}
		target, ok := g.NodeByID(dest)
		if !ok {
			skipped++
			continue
		}
		g.AddLink(id, origin, target)
		linkCount++
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	if skipped > 0 {
		log.Printf("Warning: skipped %d links referencing unknown nodes", skipped)
	}

	log.Printf("Loaded %d links in %s", linkCount, time.Since(start).Round(time.Millisecond))
	return g, nil
}
