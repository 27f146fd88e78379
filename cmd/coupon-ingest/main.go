// Command coupon-ingest imports bulk promo code dumps into the coupons table.
//
// Vendors ship several gzip files of candidate codes; a code counts as valid
// only when it appears in at least two of them. The dumps are far too large
// to hold in memory, so the tool makes two streaming passes: the first builds
// one bloom filter per file, the second collects codes that hit another
// file's filter. Known campaign codes get their configured rule, everything
// else gets the default.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/greencart-api/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	writeBatch    = 500
)

// campaignRule is the discount applied to a recognized promo code.
type campaignRule struct {
	discount   string
	minAmount  string
	maxOff     string
	usageLimit int
}

var campaignRules = map[string]campaignRule{
	"FIFTYOFF": {discount: "50", minAmount: "100", maxOff: "75"},
	"SIXTYOFF": {discount: "60", minAmount: "150", maxOff: "90"},
	"HAPPYHRS": {discount: "18", minAmount: "0", maxOff: "0"},
	"GNULINUX": {discount: "15", minAmount: "0", maxOff: "0"},
	"BIRTHDAY": {discount: "30", minAmount: "0", maxOff: "25", usageLimit: 1},
	"OVER9000": {discount: "9", minAmount: "90", maxOff: "0"},
}

var defaultCampaignRule = campaignRule{discount: "10", minAmount: "20", maxOff: "15"}

func main() {
	var (
		dataDir     string
		databaseURL string
		validDays   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&validDays, "valid-days", 365, "days until imported coupons expire")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, validDays); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, validDays int) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: collecting codes present in 2+ files")

	codes, err := collectValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "collect valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	expiry := time.Now().AddDate(0, 0, validDays)
	if err := importCoupons(ctx, pool, codes, expiry); err != nil {
		return errors.Wrap(err, "import coupons")
	}

	return nil
}

func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			err := streamGzLines(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collectValidCodes re-streams each file and keeps codes that also hit
// another file's filter. Per-file hits are merged as bitmasks so a code
// needs popcount >= 2 to survive.
func collectValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFile := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			hits := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			var count uint64

			err := streamGzLines(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}

				count++
				if count%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}

				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						hits[code] |= fileBit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}

			slog.Info("pass 2 complete",
				slog.Int("file", i+1),
				slog.Uint64("total_codes", count),
				slog.Int("hits", len(hits)),
			)
			perFile[i] = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, hits := range perFile {
		for code, mask := range hits {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

func streamGzLines(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (code, discount, min_amount, max_discount, expiry_date, is_active, usage_limit)
VALUES (UPPER($1), $2, $3, $4, $5, TRUE, $6)
ON CONFLICT (code) DO UPDATE SET
    discount = EXCLUDED.discount,
    min_amount = EXCLUDED.min_amount,
    max_discount = EXCLUDED.max_discount,
    expiry_date = EXCLUDED.expiry_date,
    is_active = TRUE,
    usage_limit = EXCLUDED.usage_limit,
    updated_at = now()`

// importCoupons upserts codes in batches over a single connection.
func importCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string, expiry time.Time) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	for start := 0; start < len(codes); start += writeBatch {
		end := min(start+writeBatch, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			rule, ok := campaignRules[code]
			if !ok {
				rule = defaultCampaignRule
			}

			discount, err := decimal.NewFromString(rule.discount)
			if err != nil {
				return errors.Wrapf(err, "parse discount for %s", code)
			}
			minAmount, err := decimal.NewFromString(rule.minAmount)
			if err != nil {
				return errors.Wrapf(err, "parse min amount for %s", code)
			}
			maxOff, err := decimal.NewFromString(rule.maxOff)
			if err != nil {
				return errors.Wrapf(err, "parse max discount for %s", code)
			}

			batch.Queue(upsertCouponSQL, code, discount, minAmount, maxOff, expiry, rule.usageLimit)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "write batch at %d", start)
		}

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}

	return nil
}
