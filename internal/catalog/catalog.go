// Package catalog holds the pipeline's dynamic lookup tables — discrete
// item volumes, device crop factors, the anchor registry, and pricing
// tiers — as rows in an embedded, in-process sqlite database rather
// than as Go map literals. The database is schema-versioned with
// golang-migrate and rebuilt fresh per process; there is no persisted
// state across runs, matching the pipeline's stateless design.
package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog wraps the reference-table database and its prepared lookup
// queries.
type Catalog struct {
	db *sql.DB
}

// Open creates (or reopens) the catalog database at dsn — use
// "file::memory:?cache=shared" for the default ephemeral, per-process
// table set — and brings its schema up to the latest migration.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Join(err, errors.New("loading embedded catalog migrations"))
	}

	target, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return errors.Join(err, errors.New("binding catalog migrate driver"))
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		return errors.Join(err, errors.New("constructing catalog migrator"))
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(err, errors.New("applying catalog migrations"))
	}
	return nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// DiscreteVolumeCY looks up the catalogued cubic-yard volume for a
// detected object label.
func (c *Catalog) DiscreteVolumeCY(label string) (float64, bool) {
	var vol float64
	err := c.db.QueryRow(`SELECT volume_cy FROM discrete_volume_catalog WHERE label = ?`, label).Scan(&vol)
	if err != nil {
		return 0, false
	}
	return vol, true
}

// DeviceCropFactor matches a device model string against the registry
// by substring, returning the crop factor used to convert a raw EXIF
// focal length to its 35mm equivalent when the tag is absent.
func (c *Catalog) DeviceCropFactor(deviceModel string) (float64, bool) {
	rows, err := c.db.Query(`SELECT model_substring, crop_factor FROM device_crop_factors`)
	if err != nil {
		return 0, false
	}
	defer rows.Close()

	for rows.Next() {
		var substr string
		var factor float64
		if err := rows.Scan(&substr, &factor); err != nil {
			continue
		}
		if substr != "" && strings.Contains(strings.ToLower(deviceModel), strings.ToLower(substr)) {
			return factor, true
		}
	}
	return 0, false
}

// AnchorCanonicalSize returns the registered real-world size (metres) of
// an anchor-eligible object class.
func (c *Catalog) AnchorCanonicalSize(label string) (float64, bool) {
	var size float64
	err := c.db.QueryRow(`SELECT canonical_m FROM anchor_registry WHERE label = ?`, label).Scan(&size)
	if err != nil {
		return 0, false
	}
	return size, true
}

// AnchorTrustRank returns the tie-break ordering for an anchor label
// (lower rank wins), used when two anchors disagree by an equal margin.
func (c *Catalog) AnchorTrustRank(label string) int {
	var rank int
	err := c.db.QueryRow(`SELECT trust_rank FROM anchor_registry WHERE label = ?`, label).Scan(&rank)
	if err != nil {
		return 99
	}
	return rank
}

// PricingTier returns the flat price for a final cubic-yard volume.
func (c *Catalog) PricingTier(volumeCY float64) (tier string, price float64, ok bool) {
	row := c.db.QueryRow(
		`SELECT tier_name, flat_price FROM pricing_tiers WHERE ? >= min_cy AND ? < max_cy`,
		volumeCY, volumeCY,
	)
	if err := row.Scan(&tier, &price); err != nil {
		return "", 0, false
	}
	return tier, price, true
}
