package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hnv-commerce/adpilot/internal/model"
)

// PostgresStore implements Store using pgxpool. Postgres handles write
// serialization itself, so unlike the SQLite backend there is no file lock.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaign_facts (
	date          DATE NOT NULL,
	campaign_id   TEXT NOT NULL,
	campaign_name TEXT,
	ad_type       TEXT NOT NULL DEFAULT 'SP',
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	sales         DOUBLE PRECISION NOT NULL DEFAULT 0,
	clicks        BIGINT NOT NULL DEFAULT 0,
	impressions   BIGINT NOT NULL DEFAULT 0,
	orders        BIGINT NOT NULL DEFAULT 0,
	UNIQUE(date, campaign_id, ad_type)
);

CREATE TABLE IF NOT EXISTS product_facts (
	date        DATE NOT NULL,
	asin        TEXT NOT NULL,
	sku         TEXT NOT NULL DEFAULT '',
	cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	sales       DOUBLE PRECISION NOT NULL DEFAULT 0,
	clicks      BIGINT NOT NULL DEFAULT 0,
	impressions BIGINT NOT NULL DEFAULT 0,
	orders      BIGINT NOT NULL DEFAULT 0,
	UNIQUE(date, asin, sku)
);

CREATE TABLE IF NOT EXISTS campaign_settings (
	campaign_id  TEXT PRIMARY KEY,
	name         TEXT,
	ad_type      TEXT NOT NULL DEFAULT 'SP',
	budget_type  TEXT NOT NULL DEFAULT 'DAILY',
	budget       DOUBLE PRECISION NOT NULL DEFAULT 0,
	status       TEXT,
	starred      BOOLEAN NOT NULL DEFAULT FALSE,
	last_updated TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ad_group_settings (
	ad_group_id  TEXT PRIMARY KEY,
	campaign_id  TEXT,
	name         TEXT,
	default_bid  DOUBLE PRECISION NOT NULL DEFAULT 0,
	state        TEXT,
	last_updated TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS product_ads (
	ad_id            TEXT PRIMARY KEY,
	campaign_id      TEXT,
	ad_group_id      TEXT,
	asin             TEXT,
	sku              TEXT,
	state            TEXT,
	serving_status   TEXT,
	creation_date    TEXT,
	last_update_date TEXT,
	last_synced      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS product_settings (
	asin         TEXT NOT NULL,
	sku          TEXT NOT NULL DEFAULT '',
	daily_budget DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_acos  DOUBLE PRECISION NOT NULL DEFAULT 0,
	budget_flex  DOUBLE PRECISION NOT NULL DEFAULT 0,
	starred      BOOLEAN NOT NULL DEFAULT FALSE,
	auto_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	last_updated TIMESTAMPTZ,
	PRIMARY KEY (asin, sku)
);

CREATE TABLE IF NOT EXISTS negative_keywords (
	campaign_id  TEXT NOT NULL,
	ad_group_id  TEXT NOT NULL DEFAULT '',
	keyword_text TEXT NOT NULL,
	match_type   TEXT NOT NULL,
	level        TEXT NOT NULL,
	source       TEXT NOT NULL,
	status       TEXT,
	reason       TEXT,
	cost         DOUBLE PRECISION,
	sales        DOUBLE PRECISION,
	orders       BIGINT,
	clicks       BIGINT,
	created_at   TIMESTAMPTZ DEFAULT now(),
	last_updated TIMESTAMPTZ,
	PRIMARY KEY (campaign_id, ad_group_id, keyword_text, match_type, level, source)
);

CREATE TABLE IF NOT EXISTS automation_log (
	id        BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
	run_id    TEXT NOT NULL DEFAULT '',
	subject   TEXT,
	action    TEXT,
	old_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	new_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason    TEXT,
	status    TEXT
);

CREATE TABLE IF NOT EXISTS system_state (key TEXT PRIMARY KEY, value TEXT);

CREATE INDEX IF NOT EXISTS idx_campaign_facts_date ON campaign_facts(date);
CREATE INDEX IF NOT EXISTS idx_product_facts_date ON product_facts(date);
CREATE INDEX IF NOT EXISTS idx_product_ads_ad_group ON product_ads(ad_group_id);
CREATE INDEX IF NOT EXISTS idx_automation_log_ts ON automation_log(timestamp);
`

// Migrate applies the schema additively.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(postgresMigration, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// --- Performance facts ---

func (s *PostgresStore) UpsertCampaignFacts(ctx context.Context, facts []model.CampaignFact) error {
	if len(facts) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, f := range facts {
			_, err := tx.Exec(ctx, `
				INSERT INTO campaign_facts (date, campaign_id, campaign_name, ad_type, cost, sales, clicks, impressions, orders)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (date, campaign_id, ad_type) DO UPDATE SET
					campaign_name=EXCLUDED.campaign_name,
					cost=EXCLUDED.cost, sales=EXCLUDED.sales, clicks=EXCLUDED.clicks,
					impressions=EXCLUDED.impressions, orders=EXCLUDED.orders`,
				f.Date, f.CampaignID, f.CampaignName, string(f.AdType),
				f.Cost, f.Sales, f.Clicks, f.Impressions, f.Orders,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert campaign fact %s/%s", f.Date, f.CampaignID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpsertProductFacts(ctx context.Context, facts []model.ProductFact) error {
	if len(facts) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, f := range facts {
			_, err := tx.Exec(ctx, `
				INSERT INTO product_facts (date, asin, sku, cost, sales, clicks, impressions, orders)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (date, asin, sku) DO UPDATE SET
					cost=EXCLUDED.cost, sales=EXCLUDED.sales, clicks=EXCLUDED.clicks,
					impressions=EXCLUDED.impressions, orders=EXCLUDED.orders`,
				f.Date, f.ASIN, f.SKU, f.Cost, f.Sales, f.Clicks, f.Impressions, f.Orders,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert product fact %s/%s", f.Date, f.ASIN)
			}
		}
		return nil
	})
}

func (s *PostgresStore) CampaignFactDates(ctx context.Context, adType model.AdType, start, end string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT date::text FROM campaign_facts WHERE date >= $1 AND date <= $2 AND ad_type = $3`,
		start, end, string(adType),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: campaign fact dates")
	}
	defer rows.Close()
	return scanPgDateSet(rows)
}

func (s *PostgresStore) ProductFactDates(ctx context.Context, start, end string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT date::text FROM product_facts WHERE date >= $1 AND date <= $2`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: product fact dates")
	}
	defer rows.Close()
	return scanPgDateSet(rows)
}

func scanPgDateSet(rows pgx.Rows) (map[string]bool, error) {
	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan date")
		}
		// Dates come back as "2006-01-02" but guard against timestamp casts.
		if len(d) > 10 {
			d = d[:10]
		}
		dates[d] = true
	}
	return dates, eris.Wrap(rows.Err(), "postgres: iterate dates")
}

func (s *PostgresStore) LatestCampaignFactDate(ctx context.Context) (string, error) {
	return s.latestDate(ctx, `SELECT COALESCE(MAX(date)::text, '') FROM campaign_facts`)
}

func (s *PostgresStore) LatestProductFactDate(ctx context.Context) (string, error) {
	return s.latestDate(ctx, `SELECT COALESCE(MAX(date)::text, '') FROM product_facts`)
}

func (s *PostgresStore) latestDate(ctx context.Context, query string) (string, error) {
	var d string
	if err := s.pool.QueryRow(ctx, query).Scan(&d); err != nil {
		return "", eris.Wrap(err, "postgres: latest date")
	}
	if len(d) > 10 {
		d = d[:10]
	}
	return d, nil
}

func (s *PostgresStore) CampaignPerformance(ctx context.Context, start, end string) ([]model.CampaignPerformance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT campaign_id, MAX(campaign_name), ad_type,
		       SUM(cost), SUM(sales), SUM(clicks), SUM(impressions), SUM(orders)
		FROM campaign_facts
		WHERE date >= $1 AND date <= $2
		GROUP BY campaign_id, ad_type`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: campaign performance")
	}
	defer rows.Close()

	var out []model.CampaignPerformance
	for rows.Next() {
		var p model.CampaignPerformance
		var adType string
		if err := rows.Scan(&p.CampaignID, &p.CampaignName, &adType,
			&p.Cost, &p.Sales, &p.Clicks, &p.Impressions, &p.Orders); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign performance")
		}
		p.AdType = model.AdType(adType)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate campaign performance")
}

func (s *PostgresStore) ProductPerformance(ctx context.Context, start, end string) ([]model.ProductPerformance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asin, sku, SUM(cost), SUM(sales), SUM(clicks), SUM(impressions), SUM(orders)
		FROM product_facts
		WHERE date >= $1 AND date <= $2
		GROUP BY asin, sku`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: product performance")
	}
	defer rows.Close()

	var out []model.ProductPerformance
	for rows.Next() {
		var p model.ProductPerformance
		if err := rows.Scan(&p.ASIN, &p.SKU, &p.Cost, &p.Sales, &p.Clicks, &p.Impressions, &p.Orders); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product performance")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate product performance")
}

func (s *PostgresStore) TrendByDate(ctx context.Context, start, end string) ([]model.TrendPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date::text, SUM(cost), SUM(sales), SUM(clicks), SUM(impressions), SUM(orders)
		FROM campaign_facts
		WHERE date >= $1 AND date <= $2
		GROUP BY date
		ORDER BY date`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: trend by date")
	}
	defer rows.Close()

	var out []model.TrendPoint
	for rows.Next() {
		var p model.TrendPoint
		if err := rows.Scan(&p.Date, &p.Cost, &p.Sales, &p.Clicks, &p.Impressions, &p.Orders); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trend point")
		}
		if len(p.Date) > 10 {
			p.Date = p.Date[:10]
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate trend points")
}

// --- Entity settings ---

func (s *PostgresStore) UpsertCampaignSettings(ctx context.Context, campaigns []model.CampaignSettings) error {
	if len(campaigns) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, c := range campaigns {
			_, err := tx.Exec(ctx, `
				INSERT INTO campaign_settings (campaign_id, name, ad_type, budget_type, budget, status, last_updated)
				VALUES ($1,$2,$3,$4,$5,$6,now())
				ON CONFLICT (campaign_id) DO UPDATE SET
					name=EXCLUDED.name, ad_type=EXCLUDED.ad_type,
					budget_type=EXCLUDED.budget_type, budget=EXCLUDED.budget,
					status=EXCLUDED.status, last_updated=now()`,
				c.CampaignID, c.Name, string(c.AdType), c.BudgetType, c.Budget, c.Status,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert campaign settings %s", c.CampaignID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpsertAdGroups(ctx context.Context, groups []model.AdGroupSettings) error {
	if len(groups) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, g := range groups {
			_, err := tx.Exec(ctx, `
				INSERT INTO ad_group_settings (ad_group_id, campaign_id, name, default_bid, state, last_updated)
				VALUES ($1,$2,$3,$4,$5,now())
				ON CONFLICT (ad_group_id) DO UPDATE SET
					campaign_id=EXCLUDED.campaign_id, name=EXCLUDED.name,
					default_bid=EXCLUDED.default_bid, state=EXCLUDED.state,
					last_updated=now()`,
				g.AdGroupID, g.CampaignID, g.Name, g.DefaultBid, g.State,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert ad group %s", g.AdGroupID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpsertProductAds(ctx context.Context, ads []model.ProductAd) error {
	if len(ads) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, a := range ads {
			_, err := tx.Exec(ctx, `
				INSERT INTO product_ads (ad_id, campaign_id, ad_group_id, asin, sku, state, serving_status, creation_date, last_update_date, last_synced)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
				ON CONFLICT (ad_id) DO UPDATE SET
					campaign_id=EXCLUDED.campaign_id, ad_group_id=EXCLUDED.ad_group_id,
					asin=EXCLUDED.asin, sku=EXCLUDED.sku, state=EXCLUDED.state,
					serving_status=EXCLUDED.serving_status,
					creation_date=EXCLUDED.creation_date,
					last_update_date=EXCLUDED.last_update_date,
					last_synced=now()`,
				a.AdID, a.CampaignID, a.AdGroupID, a.ASIN, a.SKU, a.State,
				a.ServingStatus, a.CreationDate, a.LastUpdateDate,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert product ad %s", a.AdID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) AdGroups(ctx context.Context) ([]model.AdGroupSettings, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ad_group_id, COALESCE(campaign_id,''), COALESCE(name,''), default_bid,
		       COALESCE(state,''), COALESCE(last_updated::text,'')
		FROM ad_group_settings`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ad groups")
	}
	defer rows.Close()

	var out []model.AdGroupSettings
	for rows.Next() {
		var g model.AdGroupSettings
		if err := rows.Scan(&g.AdGroupID, &g.CampaignID, &g.Name, &g.DefaultBid, &g.State, &g.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ad group")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate ad groups")
}

func (s *PostgresStore) ProductAds(ctx context.Context) ([]model.ProductAd, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ad_id, COALESCE(campaign_id,''), COALESCE(ad_group_id,''), COALESCE(asin,''),
		       COALESCE(sku,''), COALESCE(state,''), COALESCE(serving_status,''),
		       COALESCE(creation_date,''), COALESCE(last_update_date,''), COALESCE(last_synced::text,'')
		FROM product_ads`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list product ads")
	}
	defer rows.Close()

	var out []model.ProductAd
	for rows.Next() {
		var a model.ProductAd
		if err := rows.Scan(&a.AdID, &a.CampaignID, &a.AdGroupID, &a.ASIN, &a.SKU,
			&a.State, &a.ServingStatus, &a.CreationDate, &a.LastUpdateDate, &a.LastSynced); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product ad")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate product ads")
}

func (s *PostgresStore) ProductSettingsList(ctx context.Context) ([]model.ProductSettings, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT asin, sku, daily_budget, target_acos, budget_flex, starred, auto_enabled,
		       COALESCE(last_updated::text,'')
		FROM product_settings`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list product settings")
	}
	defer rows.Close()

	var out []model.ProductSettings
	for rows.Next() {
		var p model.ProductSettings
		if err := rows.Scan(&p.ASIN, &p.SKU, &p.DailyBudget, &p.TargetACOS, &p.BudgetFlex,
			&p.Starred, &p.AutoEnabled, &p.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product settings")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate product settings")
}

func (s *PostgresStore) SaveProductSettings(ctx context.Context, settings []model.ProductSettings) error {
	if len(settings) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, p := range settings {
			if strings.TrimSpace(p.ASIN) == "" {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO product_settings (asin, sku, daily_budget, target_acos, budget_flex, starred, auto_enabled, last_updated)
				VALUES ($1,$2,$3,$4,$5,$6,$7,now())
				ON CONFLICT (asin, sku) DO UPDATE SET
					daily_budget=EXCLUDED.daily_budget, target_acos=EXCLUDED.target_acos,
					budget_flex=EXCLUDED.budget_flex, starred=EXCLUDED.starred,
					auto_enabled=EXCLUDED.auto_enabled, last_updated=now()`,
				p.ASIN, p.SKU, p.DailyBudget, p.TargetACOS, p.BudgetFlex, p.Starred, p.AutoEnabled,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: save product settings %s/%s", p.ASIN, p.SKU)
			}
		}
		return nil
	})
}

// --- Negative keywords ---

func (s *PostgresStore) SaveNegativeKeywords(ctx context.Context, records []model.NegativeKeywordRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			_, err := tx.Exec(ctx, `
				INSERT INTO negative_keywords
					(campaign_id, ad_group_id, keyword_text, match_type, level, source, status,
					 reason, cost, sales, orders, clicks, last_updated)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
				ON CONFLICT (campaign_id, ad_group_id, keyword_text, match_type, level, source)
				DO UPDATE SET
					status=EXCLUDED.status, reason=EXCLUDED.reason,
					cost=EXCLUDED.cost, sales=EXCLUDED.sales,
					orders=EXCLUDED.orders, clicks=EXCLUDED.clicks,
					last_updated=now()`,
				r.CampaignID, r.AdGroupID, r.KeywordText, r.MatchType, string(r.Level), r.Source,
				string(r.Status), r.Reason, r.Cost, r.Sales, r.Orders, r.Clicks,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: save negative keyword %q", r.KeywordText)
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpdateNegativeKeywordStatus(ctx context.Context, records []model.NegativeKeywordRecord, status model.NegativeStatus) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			_, err := tx.Exec(ctx, `
				UPDATE negative_keywords SET status=$1, last_updated=now()
				WHERE campaign_id=$2 AND ad_group_id=$3 AND keyword_text=$4 AND match_type=$5 AND level=$6 AND source=$7`,
				string(status),
				r.CampaignID, r.AdGroupID, r.KeywordText, r.MatchType, string(r.Level), r.Source,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: update negative keyword %q", r.KeywordText)
			}
		}
		return nil
	})
}

func (s *PostgresStore) NegativeKeywords(ctx context.Context, source string) ([]model.NegativeKeywordRecord, error) {
	query := `
		SELECT campaign_id, ad_group_id, keyword_text, match_type, level, source,
		       COALESCE(status,''), COALESCE(reason,''), COALESCE(cost,0), COALESCE(sales,0),
		       COALESCE(orders,0), COALESCE(clicks,0),
		       COALESCE(created_at::text,''), COALESCE(last_updated::text,'')
		FROM negative_keywords`
	var args []any
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list negative keywords")
	}
	defer rows.Close()

	var out []model.NegativeKeywordRecord
	for rows.Next() {
		var r model.NegativeKeywordRecord
		var level, status string
		if err := rows.Scan(&r.CampaignID, &r.AdGroupID, &r.KeywordText, &r.MatchType,
			&level, &r.Source, &status, &r.Reason, &r.Cost, &r.Sales,
			&r.Orders, &r.Clicks, &r.CreatedAt, &r.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan negative keyword")
		}
		r.Level = model.NegativeLevel(level)
		r.Status = model.NegativeStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate negative keywords")
}

// --- Audit log ---

func (s *PostgresStore) AppendAutomationLog(ctx context.Context, entries []model.AutomationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO automation_log (timestamp, run_id, subject, action, old_value, new_value, reason, status)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				ts, e.RunID, e.Subject, e.Action, e.OldValue, e.NewValue, e.Reason, string(e.Status),
			)
			if err != nil {
				return eris.Wrap(err, "postgres: append automation log")
			}
		}
		return nil
	})
}

func (s *PostgresStore) AutomationLogs(ctx context.Context, limit int) ([]model.AutomationLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, run_id, COALESCE(subject,''), COALESCE(action,''),
		       old_value, new_value, COALESCE(reason,''), COALESCE(status,'')
		FROM automation_log ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list automation logs")
	}
	defer rows.Close()

	var out []model.AutomationLogEntry
	for rows.Next() {
		var e model.AutomationLogEntry
		var status string
		if err := rows.Scan(&e.Timestamp, &e.RunID, &e.Subject, &e.Action,
			&e.OldValue, &e.NewValue, &e.Reason, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan automation log")
		}
		e.Status = model.RunStatus(status)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate automation logs")
}

// --- System state ---

func (s *PostgresStore) GetState(ctx context.Context, key string) (string, error) {
	var val string
	err := s.pool.QueryRow(ctx, `SELECT value FROM system_state WHERE key = $1`, key).Scan(&val)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get state %s", key)
	}
	return val, nil
}

func (s *PostgresStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_state (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: set state %s", key)
}

func (s *PostgresStore) SetSyncStatus(ctx context.Context, status, detail string, days int) error {
	if len(detail) > 1000 {
		detail = detail[:1000]
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for key, val := range map[string]string{
			model.KeySyncStatus: status,
			model.KeySyncError:  detail,
			model.KeySyncDays:   strconv.Itoa(days),
		} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO system_state (key, value) VALUES ($1,$2)
				ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`,
				key, val,
			); err != nil {
				return eris.Wrapf(err, "postgres: set sync status %s", key)
			}
		}
		return nil
	})
}
