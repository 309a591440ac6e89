package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ad-reporting-engine/internal/config"
	"ad-reporting-engine/internal/reporting"
)

const queryTimeout = 5 * time.Second

type Store struct {
	pool    *pgxpool.Pool
	channel string
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool, channel: cfg.Listener.Channel}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const legacyRecordQuery = `
	SELECT a.seller, a.caller_package_name, a.winning_buyer, a.winning_ad_bid,
	       a.winning_ad_render_uri, a.bidding_logic_uri,
	       a.seller_contextual_signals, a.buyer_contextual_signals,
	       a.custom_audience_signals, COALESCE(b.buyer_decision_logic_js, ''),
	       a.creation_timestamp
	FROM ad_selection a
	LEFT JOIN buyer_decision_logic b ON b.bidding_logic_uri = a.bidding_logic_uri
	WHERE a.ad_selection_id = $1`

const unifiedRecordQuery = `
	SELECT i.seller, i.caller_package_name, r.winning_buyer, r.winning_ad_bid,
	       r.winning_ad_render_uri, r.bidding_logic_uri,
	       r.seller_contextual_signals, r.buyer_contextual_signals,
	       r.custom_audience_signals, r.buyer_decision_logic_js,
	       i.creation_instant
	FROM ad_selection_initialization i
	JOIN ad_selection_result r ON r.ad_selection_id = i.ad_selection_id
	WHERE i.ad_selection_id = $1`

// GetAdSelection reads one auction from either the legacy or the unified tables.
func (s *Store) GetAdSelection(ctx context.Context, id int64, unifiedTables bool) (reporting.AdSelectionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := legacyRecordQuery
	if unifiedTables {
		q = unifiedRecordQuery
	}
	rec := reporting.AdSelectionRecord{ID: id}
	var (
		sellerCtx, buyerCtx string
		customAudience      []byte
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&rec.Seller, &rec.CallerPackage, &rec.WinningBuyer, &rec.WinningBid,
		&rec.WinningRenderURI, &rec.BiddingLogicURI,
		&sellerCtx, &buyerCtx, &customAudience, &rec.BuyerDecisionLogicJS,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, reporting.ErrRecordNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("query ad selection %d: %w", id, err)
	}
	if rec.SellerContextualSignals, err = decodeSignals(sellerCtx); err != nil {
		return rec, fmt.Errorf("seller contextual signals for %d: %w", id, err)
	}
	if rec.BuyerContextualSignals, err = decodeSignals(buyerCtx); err != nil {
		return rec, fmt.Errorf("buyer contextual signals for %d: %w", id, err)
	}
	if len(customAudience) > 0 {
		rec.CustomAudience = &reporting.CustomAudienceSignals{}
		if err := json.Unmarshal(customAudience, rec.CustomAudience); err != nil {
			return rec, fmt.Errorf("custom audience signals for %d: %w", id, err)
		}
	}
	return rec, nil
}

// SaveAdSelection writes an auction result into the chosen layout. The
// buyer decision logic, when present, goes alongside it.
func (s *Store) SaveAdSelection(ctx context.Context, rec reporting.AdSelectionRecord, unifiedTables bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sellerCtx, buyerCtx, ca, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if unifiedTables {
			if _, err := tx.Exec(ctx, `
				INSERT INTO ad_selection_initialization (ad_selection_id, seller, caller_package_name, creation_instant)
				VALUES ($1, $2, $3, $4)`,
				rec.ID, rec.Seller, rec.CallerPackage, created); err != nil {
				return fmt.Errorf("insert ad selection initialization: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO ad_selection_result (ad_selection_id, winning_buyer, winning_ad_bid, winning_ad_render_uri,
				       bidding_logic_uri, buyer_decision_logic_js, seller_contextual_signals, buyer_contextual_signals,
				       custom_audience_signals)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				rec.ID, rec.WinningBuyer, rec.WinningBid, rec.WinningRenderURI, rec.BiddingLogicURI,
				rec.BuyerDecisionLogicJS, sellerCtx, buyerCtx, ca); err != nil {
				return fmt.Errorf("insert ad selection result: %w", err)
			}
			return nil
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO ad_selection (ad_selection_id, seller, caller_package_name, winning_buyer, winning_ad_bid,
			       winning_ad_render_uri, bidding_logic_uri, seller_contextual_signals, buyer_contextual_signals,
			       custom_audience_signals, creation_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rec.ID, rec.Seller, rec.CallerPackage, rec.WinningBuyer, rec.WinningBid, rec.WinningRenderURI,
			rec.BiddingLogicURI, sellerCtx, buyerCtx, ca, created); err != nil {
			return fmt.Errorf("insert ad selection: %w", err)
		}
		if rec.BuyerDecisionLogicJS != "" && rec.BiddingLogicURI != "" {
			if _, err := tx.Exec(ctx, `
				INSERT INTO buyer_decision_logic (bidding_logic_uri, buyer_decision_logic_js)
				VALUES ($1, $2)
				ON CONFLICT (bidding_logic_uri) DO UPDATE SET buyer_decision_logic_js = EXCLUDED.buyer_decision_logic_js`,
				rec.BiddingLogicURI, rec.BuyerDecisionLogicJS); err != nil {
				return fmt.Errorf("insert buyer decision logic: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) BuyerDecisionLogic(ctx context.Context, biddingLogicURI string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var js string
	err := s.pool.QueryRow(ctx,
		`SELECT buyer_decision_logic_js FROM buyer_decision_logic WHERE bidding_logic_uri = $1`,
		biddingLogicURI).Scan(&js)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", reporting.ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query buyer decision logic: %w", err)
	}
	return js, nil
}

// SafelyInsertBeacons holds a table lock while it counts and inserts so
// concurrent reports cannot overshoot either cap. A repeated key replaces
// the stored uri.
func (s *Store) SafelyInsertBeacons(ctx context.Context, adSelectionID int64, dest reporting.Destination, beacons []reporting.InteractionBeacon, maxTotal, maxPerDestination int64) (int, error) {
	if len(beacons) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	written := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE registered_ad_interactions IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock beacons: %w", err)
		}
		var total, perDest int64
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM registered_ad_interactions`).Scan(&total); err != nil {
			return fmt.Errorf("count beacons: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM registered_ad_interactions
			WHERE ad_selection_id = $1 AND destination = $2`,
			adSelectionID, int16(dest)).Scan(&perDest); err != nil {
			return fmt.Errorf("count beacons for destination: %w", err)
		}
		n := capacity(total, perDest, maxTotal, maxPerDestination, len(beacons))
		if n == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, b := range beacons[:n] {
			batch.Queue(`
				INSERT INTO registered_ad_interactions (ad_selection_id, interaction_key, destination, interaction_uri)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (ad_selection_id, interaction_key, destination)
				DO UPDATE SET interaction_uri = EXCLUDED.interaction_uri`,
				adSelectionID, b.Key, int16(dest), b.URI)
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert beacon %q: %w", beacons[i].Key, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close beacon batch: %w", err)
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (s *Store) RegisteredBeaconURI(ctx context.Context, adSelectionID int64, key string, dest reporting.Destination) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var uri string
	err := s.pool.QueryRow(ctx, `
		SELECT interaction_uri FROM registered_ad_interactions
		WHERE ad_selection_id = $1 AND interaction_key = $2 AND destination = $3`,
		adSelectionID, key, int16(dest)).Scan(&uri)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", reporting.ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query beacon: %w", err)
	}
	return uri, nil
}

func (s *Store) CountBeacons(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registered_ad_interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count beacons: %w", err)
	}
	return n, nil
}

func (s *Store) AdSelectionOverride(ctx context.Context, configID, appPackage string) (reporting.AdSelectionOverride, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	o := reporting.AdSelectionOverride{ConfigID: configID, AppPackage: appPackage}
	err := s.pool.QueryRow(ctx, `
		SELECT decision_logic_js, trusted_scoring_signals FROM ad_selection_overrides
		WHERE config_id = $1 AND app_package_name = $2`,
		configID, appPackage).Scan(&o.DecisionLogicJS, &o.TrustedScoringSignals)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, false, nil
	}
	if err != nil {
		return o, false, fmt.Errorf("query ad selection override: %w", err)
	}
	return o, true, nil
}

func (s *Store) PutAdSelectionOverride(ctx context.Context, o reporting.AdSelectionOverride) error {
	return s.exec(ctx, "put ad selection override", `
		INSERT INTO ad_selection_overrides (config_id, app_package_name, decision_logic_js, trusted_scoring_signals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (config_id, app_package_name)
		DO UPDATE SET decision_logic_js = EXCLUDED.decision_logic_js,
		              trusted_scoring_signals = EXCLUDED.trusted_scoring_signals`,
		o.ConfigID, o.AppPackage, o.DecisionLogicJS, o.TrustedScoringSignals)
}

func (s *Store) DeleteAdSelectionOverride(ctx context.Context, configID, appPackage string) error {
	return s.exec(ctx, "delete ad selection override",
		`DELETE FROM ad_selection_overrides WHERE config_id = $1 AND app_package_name = $2`,
		configID, appPackage)
}

func (s *Store) DeleteAllAdSelectionOverrides(ctx context.Context, appPackage string) error {
	return s.exec(ctx, "delete ad selection overrides",
		`DELETE FROM ad_selection_overrides WHERE app_package_name = $1`, appPackage)
}

func (s *Store) CustomAudienceOverride(ctx context.Context, owner, buyer, name, appPackage string) (reporting.CustomAudienceOverride, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	o := reporting.CustomAudienceOverride{Owner: owner, Buyer: buyer, Name: name, AppPackage: appPackage}
	err := s.pool.QueryRow(ctx, `
		SELECT bidding_logic_js, trusted_bidding_signals FROM custom_audience_overrides
		WHERE owner = $1 AND buyer = $2 AND name = $3 AND app_package_name = $4`,
		owner, buyer, name, appPackage).Scan(&o.BiddingLogicJS, &o.TrustedBiddingSignals)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, false, nil
	}
	if err != nil {
		return o, false, fmt.Errorf("query custom audience override: %w", err)
	}
	return o, true, nil
}

func (s *Store) PutCustomAudienceOverride(ctx context.Context, o reporting.CustomAudienceOverride) error {
	return s.exec(ctx, "put custom audience override", `
		INSERT INTO custom_audience_overrides (owner, buyer, name, app_package_name, bidding_logic_js, trusted_bidding_signals)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner, buyer, name, app_package_name)
		DO UPDATE SET bidding_logic_js = EXCLUDED.bidding_logic_js,
		              trusted_bidding_signals = EXCLUDED.trusted_bidding_signals`,
		o.Owner, o.Buyer, o.Name, o.AppPackage, o.BiddingLogicJS, o.TrustedBiddingSignals)
}

func (s *Store) DeleteCustomAudienceOverride(ctx context.Context, owner, buyer, name, appPackage string) error {
	return s.exec(ctx, "delete custom audience override", `
		DELETE FROM custom_audience_overrides
		WHERE owner = $1 AND buyer = $2 AND name = $3 AND app_package_name = $4`,
		owner, buyer, name, appPackage)
}

func (s *Store) DeleteAllCustomAudienceOverrides(ctx context.Context, appPackage string) error {
	return s.exec(ctx, "delete custom audience overrides",
		`DELETE FROM custom_audience_overrides WHERE app_package_name = $1`, appPackage)
}

// LoadOverrides reads every dev override into one snapshot.
func (s *Store) LoadOverrides(ctx context.Context) (OverrideSet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	set := NewOverrideSet()
	rows, err := s.pool.Query(ctx, `
		SELECT config_id, app_package_name, decision_logic_js, trusted_scoring_signals
		FROM ad_selection_overrides`)
	if err != nil {
		return set, fmt.Errorf("query ad selection overrides: %w", err)
	}
	for rows.Next() {
		var o reporting.AdSelectionOverride
		if err := rows.Scan(&o.ConfigID, &o.AppPackage, &o.DecisionLogicJS, &o.TrustedScoringSignals); err != nil {
			rows.Close()
			return set, fmt.Errorf("scan row: %w", err)
		}
		set.AdSelection[adSelectionKeyOf(o)] = o
	}
	rows.Close()
	if rows.Err() != nil {
		return set, rows.Err()
	}

	rows, err = s.pool.Query(ctx, `
		SELECT owner, buyer, name, app_package_name, bidding_logic_js, trusted_bidding_signals
		FROM custom_audience_overrides`)
	if err != nil {
		return set, fmt.Errorf("query custom audience overrides: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o reporting.CustomAudienceOverride
		if err := rows.Scan(&o.Owner, &o.Buyer, &o.Name, &o.AppPackage, &o.BiddingLogicJS, &o.TrustedBiddingSignals); err != nil {
			return set, fmt.Errorf("scan row: %w", err)
		}
		set.CustomAudience[customAudienceKeyOf(o)] = o
	}
	return set, rows.Err()
}

func (s *Store) exec(ctx context.Context, what, q string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (s *Store) ListenChannel() string {
	if s.channel == "" {
		return "reporting_override_change"
	}
	return s.channel
}

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}

// capacity is how many of n beacons fit under both caps. Either cap already
// reached means none.
func capacity(total, perDest, maxTotal, maxPerDestination int64, n int) int {
	if total >= maxTotal || perDest >= maxPerDestination {
		return 0
	}
	avail := min(maxTotal-total, maxPerDestination-perDest)
	if int64(n) < avail {
		return n
	}
	return int(avail)
}

func decodeSignals(raw string) (reporting.ContextualSignals, error) {
	var s reporting.ContextualSignals
	if raw == "" {
		return s, nil
	}
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

func encodeRecord(rec reporting.AdSelectionRecord) (sellerCtx, buyerCtx string, ca []byte, err error) {
	b, err := json.Marshal(rec.SellerContextualSignals)
	if err != nil {
		return "", "", nil, fmt.Errorf("encode seller signals: %w", err)
	}
	sellerCtx = string(b)
	if b, err = json.Marshal(rec.BuyerContextualSignals); err != nil {
		return "", "", nil, fmt.Errorf("encode buyer signals: %w", err)
	}
	buyerCtx = string(b)
	if rec.CustomAudience != nil {
		if ca, err = json.Marshal(rec.CustomAudience); err != nil {
			return "", "", nil, fmt.Errorf("encode custom audience: %w", err)
		}
	}
	return sellerCtx, buyerCtx, ca, nil
}
