package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hnv-commerce/adpilot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Writes are
// serialized through a cross-process file lock; reads bypass it.
type SQLiteStore struct {
	db   *sql.DB
	lock *FileLock
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, lock: NewFileLock(dsn + ".write.lock")}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaign_facts (
	date          TEXT NOT NULL,
	campaign_id   TEXT NOT NULL,
	campaign_name TEXT,
	ad_type       TEXT NOT NULL DEFAULT 'SP',
	cost          REAL NOT NULL DEFAULT 0,
	sales         REAL NOT NULL DEFAULT 0,
	clicks        INTEGER NOT NULL DEFAULT 0,
	impressions   INTEGER NOT NULL DEFAULT 0,
	orders        INTEGER NOT NULL DEFAULT 0,
	UNIQUE(date, campaign_id, ad_type)
);

CREATE TABLE IF NOT EXISTS product_facts (
	date        TEXT NOT NULL,
	asin        TEXT NOT NULL,
	sku         TEXT NOT NULL DEFAULT '',
	cost        REAL NOT NULL DEFAULT 0,
	sales       REAL NOT NULL DEFAULT 0,
	clicks      INTEGER NOT NULL DEFAULT 0,
	impressions INTEGER NOT NULL DEFAULT 0,
	orders      INTEGER NOT NULL DEFAULT 0,
	UNIQUE(date, asin, sku)
);

CREATE TABLE IF NOT EXISTS campaign_settings (
	campaign_id  TEXT PRIMARY KEY,
	name         TEXT,
	ad_type      TEXT NOT NULL DEFAULT 'SP',
	budget_type  TEXT NOT NULL DEFAULT 'DAILY',
	budget       REAL NOT NULL DEFAULT 0,
	status       TEXT,
	starred      INTEGER NOT NULL DEFAULT 0,
	last_updated TEXT
);

CREATE TABLE IF NOT EXISTS ad_group_settings (
	ad_group_id  TEXT PRIMARY KEY,
	campaign_id  TEXT,
	name         TEXT,
	default_bid  REAL NOT NULL DEFAULT 0,
	state        TEXT,
	last_updated TEXT
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
	last_synced      TEXT
);

CREATE TABLE IF NOT EXISTS product_settings (
	asin         TEXT NOT NULL,
	sku          TEXT NOT NULL DEFAULT '',
	daily_budget REAL NOT NULL DEFAULT 0,
	target_acos  REAL NOT NULL DEFAULT 0,
	budget_flex  REAL NOT NULL DEFAULT 0,
	starred      INTEGER NOT NULL DEFAULT 0,
	auto_enabled INTEGER NOT NULL DEFAULT 1,
	last_updated TEXT,
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
	cost         REAL,
	sales        REAL,
	orders       INTEGER,
	clicks       INTEGER,
	created_at   TEXT,
	last_updated TEXT,
	PRIMARY KEY (campaign_id, ad_group_id, keyword_text, match_type, level, source)
);

CREATE TABLE IF NOT EXISTS automation_log (
	timestamp TEXT NOT NULL,
	run_id    TEXT NOT NULL DEFAULT '',
	subject   TEXT,
	action    TEXT,
	old_value REAL NOT NULL DEFAULT 0,
	new_value REAL NOT NULL DEFAULT 0,
	reason    TEXT,
	status    TEXT
);

CREATE TABLE IF NOT EXISTS system_state (key TEXT PRIMARY KEY, value TEXT);

CREATE INDEX IF NOT EXISTS idx_campaign_facts_date ON campaign_facts(date);
CREATE INDEX IF NOT EXISTS idx_product_facts_date ON product_facts(date);
CREATE INDEX IF NOT EXISTS idx_product_ads_ad_group ON product_ads(ad_group_id);
CREATE INDEX IF NOT EXISTS idx_automation_log_ts ON automation_log(timestamp);
`

// sqliteAlters patch databases created before a column existed. Adding a
// column that is already present fails, which is ignored.
var sqliteAlters = []string{
	"ALTER TABLE campaign_settings ADD COLUMN starred INTEGER NOT NULL DEFAULT 0",
	"ALTER TABLE campaign_settings ADD COLUMN budget_type TEXT NOT NULL DEFAULT 'DAILY'",
	"ALTER TABLE product_settings ADD COLUMN budget_flex REAL NOT NULL DEFAULT 0",
	"ALTER TABLE negative_keywords ADD COLUMN reason TEXT",
	"ALTER TABLE negative_keywords ADD COLUMN cost REAL",
	"ALTER TABLE negative_keywords ADD COLUMN sales REAL",
	"ALTER TABLE negative_keywords ADD COLUMN orders INTEGER",
	"ALTER TABLE negative_keywords ADD COLUMN clicks INTEGER",
	"ALTER TABLE automation_log ADD COLUMN run_id TEXT NOT NULL DEFAULT ''",
}

// Migrate applies the schema additively.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	for _, alter := range sqliteAlters {
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return eris.Wrapf(err, "sqlite: alter %q", alter)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withWriteTx runs fn inside a transaction while holding the file lock.
func (s *SQLiteStore) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func nowStamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// --- Performance facts ---

func (s *SQLiteStore) UpsertCampaignFacts(ctx context.Context, facts []model.CampaignFact) error {
	if len(facts) == 0 {
		return nil
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, f := range facts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_facts (date, campaign_id, campaign_name, ad_type, cost, sales, clicks, impressions, orders)
				VALUES (?,?,?,?,?,?,?,?,?)
				ON CONFLICT(date, campaign_id, ad_type) DO UPDATE SET
					campaign_name=excluded.campaign_name,
					cost=excluded.cost, sales=excluded.sales, clicks=excluded.clicks,
					impressions=excluded.impressions, orders=excluded.orders`,
				f.Date, f.CampaignID, f.CampaignName, string(f.AdType),
				f.Cost, f.Sales, f.Clicks, f.Impressions, f.Orders,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert campaign fact %s/%s", f.Date, f.CampaignID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertProductFacts(ctx context.Context, facts []model.ProductFact) error {
	if len(facts) == 0 {
		return nil
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, f := range facts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_facts (date, asin, sku, cost, sales, clicks, impressions, orders)
				VALUES (?,?,?,?,?,?,?,?)
				ON CONFLICT(date, asin, sku) DO UPDATE SET
					cost=excluded.cost, sales=excluded.sales, clicks=excluded.clicks,
					impressions=excluded.impressions, orders=excluded.orders`,
				f.Date, f.ASIN, f.SKU, f.Cost, f.Sales, f.Clicks, f.Impressions, f.Orders,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert product fact %s/%s", f.Date, f.ASIN)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) CampaignFactDates(ctx context.Context, adType model.AdType, start, end string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT date FROM campaign_facts WHERE date >= ? AND date <= ? AND ad_type = ?`,
		start, end, string(adType),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: campaign fact dates")
	}
	defer rows.Close()
	return scanDateSet(rows)
}

func (s *SQLiteStore) ProductFactDates(ctx context.Context, start, end string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT date FROM product_facts WHERE date >= ? AND date <= ?`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: product fact dates")
	}
	defer rows.Close()
	return scanDateSet(rows)
}

func scanDateSet(rows *sql.Rows) (map[string]bool, error) {
	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan date")
		}
		dates[d] = true
	}
	return dates, eris.Wrap(rows.Err(), "sqlite: iterate dates")
}

func (s *SQLiteStore) LatestCampaignFactDate(ctx context.Context) (string, error) {
	return s.latestDate(ctx, "campaign_facts")
}

func (s *SQLiteStore) LatestProductFactDate(ctx context.Context) (string, error) {
	return s.latestDate(ctx, "product_facts")
}

func (s *SQLiteStore) latestDate(ctx context.Context, table string) (string, error) {
	var d sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM `+table).Scan(&d)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: latest date %s", table)
	}
	return d.String, nil
}

func (s *SQLiteStore) CampaignPerformance(ctx context.Context, start, end string) ([]model.CampaignPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, MAX(campaign_name), ad_type,
		       SUM(cost), SUM(sales), SUM(clicks), SUM(impressions), SUM(orders)
		FROM campaign_facts
		WHERE date >= ? AND date <= ?
		GROUP BY campaign_id, ad_type`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: campaign performance")
	}
	defer rows.Close()

	var out []model.CampaignPerformance
	for rows.Next() {
		var p model.CampaignPerformance
		var adType string
		if err := rows.Scan(&p.CampaignID, &p.CampaignName, &adType,
			&p.Cost, &p.Sales, &p.Clicks, &p.Impressions, &p.Orders); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign performance")
		}
		p.AdType = model.AdType(adType)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate campaign performance")
}

func (s *SQLiteStore) ProductPerformance(ctx context.Context, start, end string) ([]model.ProductPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asin, sku, SUM(cost), SUM(sales), SUM(clicks), SUM(impressions), SUM(orders)
		FROM product_facts
		WHERE date >= ? AND date <= ?
		GROUP BY asin, sku`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: product performance")
	}
	defer rows.Close()

	var out []model.ProductPerformance
	for rows.Next() {
		var p model.ProductPerformance
		if err := rows.Scan(&p.ASIN, &p.SKU, &p.Cost, &p.Sales, &p.Clicks, &p.Impressions, &p.Orders); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product performance")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate product performance")
}

func (s *SQLiteStore) TrendByDate(ctx context.Context, start, end string) ([]model.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, SUM(cost), SUM(sales), SUM(clicks), SUM(impressions), SUM(orders)
		FROM campaign_facts
		WHERE date >= ? AND date <= ?
		GROUP BY date
		ORDER BY date`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: trend by date")
	}
	defer rows.Close()

	var out []model.TrendPoint
	for rows.Next() {
		var p model.TrendPoint
		if err := rows.Scan(&p.Date, &p.Cost, &p.Sales, &p.Clicks, &p.Impressions, &p.Orders); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trend point")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate trend points")
}

// --- Entity settings ---

func (s *SQLiteStore) UpsertCampaignSettings(ctx context.Context, campaigns []model.CampaignSettings) error {
	if len(campaigns) == 0 {
		return nil
	}
	ts := nowStamp()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, c := range campaigns {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_settings (campaign_id, name, ad_type, budget_type, budget, status, last_updated)
				VALUES (?,?,?,?,?,?,?)
				ON CONFLICT(campaign_id) DO UPDATE SET
					name=excluded.name, ad_type=excluded.ad_type,
					budget_type=excluded.budget_type, budget=excluded.budget,
					status=excluded.status, last_updated=excluded.last_updated`,
				c.CampaignID, c.Name, string(c.AdType), c.BudgetType, c.Budget, c.Status, ts,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert campaign settings %s", c.CampaignID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertAdGroups(ctx context.Context, groups []model.AdGroupSettings) error {
	if len(groups) == 0 {
		return nil
	}
	ts := nowStamp()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, g := range groups {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ad_group_settings (ad_group_id, campaign_id, name, default_bid, state, last_updated)
				VALUES (?,?,?,?,?,?)
				ON CONFLICT(ad_group_id) DO UPDATE SET
					campaign_id=excluded.campaign_id, name=excluded.name,
					default_bid=excluded.default_bid, state=excluded.state,
					last_updated=excluded.last_updated`,
				g.AdGroupID, g.CampaignID, g.Name, g.DefaultBid, g.State, ts,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert ad group %s", g.AdGroupID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertProductAds(ctx context.Context, ads []model.ProductAd) error {
	if len(ads) == 0 {
		return nil
	}
	ts := nowStamp()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, a := range ads {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_ads (ad_id, campaign_id, ad_group_id, asin, sku, state, serving_status, creation_date, last_update_date, last_synced)
				VALUES (?,?,?,?,?,?,?,?,?,?)
				ON CONFLICT(ad_id) DO UPDATE SET
					campaign_id=excluded.campaign_id, ad_group_id=excluded.ad_group_id,
					asin=excluded.asin, sku=excluded.sku, state=excluded.state,
					serving_status=excluded.serving_status,
					creation_date=excluded.creation_date,
					last_update_date=excluded.last_update_date,
					last_synced=excluded.last_synced`,
				a.AdID, a.CampaignID, a.AdGroupID, a.ASIN, a.SKU, a.State,
				a.ServingStatus, a.CreationDate, a.LastUpdateDate, ts,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert product ad %s", a.AdID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) AdGroups(ctx context.Context) ([]model.AdGroupSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ad_group_id, campaign_id, name, default_bid, state, COALESCE(last_updated,'') FROM ad_group_settings`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ad groups")
	}
	defer rows.Close()

	var out []model.AdGroupSettings
	for rows.Next() {
		var g model.AdGroupSettings
		var name, state sql.NullString
		if err := rows.Scan(&g.AdGroupID, &g.CampaignID, &name, &g.DefaultBid, &state, &g.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ad group")
		}
		g.Name, g.State = name.String, state.String
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate ad groups")
}

func (s *SQLiteStore) ProductAds(ctx context.Context) ([]model.ProductAd, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ad_id, COALESCE(campaign_id,''), COALESCE(ad_group_id,''), COALESCE(asin,''),
		       COALESCE(sku,''), COALESCE(state,''), COALESCE(serving_status,''),
		       COALESCE(creation_date,''), COALESCE(last_update_date,''), COALESCE(last_synced,'')
		FROM product_ads`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list product ads")
	}
	defer rows.Close()

	var out []model.ProductAd
	for rows.Next() {
		var a model.ProductAd
		if err := rows.Scan(&a.AdID, &a.CampaignID, &a.AdGroupID, &a.ASIN, &a.SKU,
			&a.State, &a.ServingStatus, &a.CreationDate, &a.LastUpdateDate, &a.LastSynced); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product ad")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate product ads")
}

func (s *SQLiteStore) ProductSettingsList(ctx context.Context) ([]model.ProductSettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asin, sku, daily_budget, target_acos, budget_flex, starred, auto_enabled, COALESCE(last_updated,'')
		FROM product_settings`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list product settings")
	}
	defer rows.Close()

	var out []model.ProductSettings
	for rows.Next() {
		var p model.ProductSettings
		var starred, enabled int
		if err := rows.Scan(&p.ASIN, &p.SKU, &p.DailyBudget, &p.TargetACOS, &p.BudgetFlex,
			&starred, &enabled, &p.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product settings")
		}
		p.Starred = starred != 0
		p.AutoEnabled = enabled != 0
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate product settings")
}

func (s *SQLiteStore) SaveProductSettings(ctx context.Context, settings []model.ProductSettings) error {
	if len(settings) == 0 {
		return nil
	}
	ts := nowStamp()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, p := range settings {
			if strings.TrimSpace(p.ASIN) == "" {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_settings (asin, sku, daily_budget, target_acos, budget_flex, starred, auto_enabled, last_updated)
				VALUES (?,?,?,?,?,?,?,?)
				ON CONFLICT(asin, sku) DO UPDATE SET
					daily_budget=excluded.daily_budget, target_acos=excluded.target_acos,
					budget_flex=excluded.budget_flex, starred=excluded.starred,
					auto_enabled=excluded.auto_enabled, last_updated=excluded.last_updated`,
				p.ASIN, p.SKU, p.DailyBudget, p.TargetACOS, p.BudgetFlex,
				boolInt(p.Starred), boolInt(p.AutoEnabled), ts,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: save product settings %s/%s", p.ASIN, p.SKU)
			}
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Negative keywords ---

func (s *SQLiteStore) SaveNegativeKeywords(ctx context.Context, records []model.NegativeKeywordRecord) error {
	if len(records) == 0 {
		return nil
	}
	ts := nowStamp()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			createdAt := r.CreatedAt
			if createdAt == "" {
				createdAt = ts
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO negative_keywords
					(campaign_id, ad_group_id, keyword_text, match_type, level, source, status,
					 reason, cost, sales, orders, clicks, created_at, last_updated)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
				ON CONFLICT(campaign_id, ad_group_id, keyword_text, match_type, level, source)
				DO UPDATE SET
					status=excluded.status, reason=excluded.reason,
					cost=excluded.cost, sales=excluded.sales,
					orders=excluded.orders, clicks=excluded.clicks,
					last_updated=excluded.last_updated`,
				r.CampaignID, r.AdGroupID, r.KeywordText, r.MatchType, string(r.Level), r.Source,
				string(r.Status), r.Reason, r.Cost, r.Sales, r.Orders, r.Clicks, createdAt, ts,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: save negative keyword %q", r.KeywordText)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateNegativeKeywordStatus(ctx context.Context, records []model.NegativeKeywordRecord, status model.NegativeStatus) error {
	if len(records) == 0 {
		return nil
	}
	ts := nowStamp()
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				UPDATE negative_keywords SET status=?, last_updated=?
				WHERE campaign_id=? AND ad_group_id=? AND keyword_text=? AND match_type=? AND level=? AND source=?`,
				string(status), ts,
				r.CampaignID, r.AdGroupID, r.KeywordText, r.MatchType, string(r.Level), r.Source,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: update negative keyword %q", r.KeywordText)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) NegativeKeywords(ctx context.Context, source string) ([]model.NegativeKeywordRecord, error) {
	query := `
		SELECT campaign_id, ad_group_id, keyword_text, match_type, level, source,
		       COALESCE(status,''), COALESCE(reason,''), COALESCE(cost,0), COALESCE(sales,0),
		       COALESCE(orders,0), COALESCE(clicks,0), COALESCE(created_at,''), COALESCE(last_updated,'')
		FROM negative_keywords`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list negative keywords")
	}
	defer rows.Close()

	var out []model.NegativeKeywordRecord
	for rows.Next() {
		var r model.NegativeKeywordRecord
		var level, status string
		if err := rows.Scan(&r.CampaignID, &r.AdGroupID, &r.KeywordText, &r.MatchType,
			&level, &r.Source, &status, &r.Reason, &r.Cost, &r.Sales,
			&r.Orders, &r.Clicks, &r.CreatedAt, &r.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan negative keyword")
		}
		r.Level = model.NegativeLevel(level)
		r.Status = model.NegativeStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate negative keywords")
}

// --- Audit log ---

func (s *SQLiteStore) AppendAutomationLog(ctx context.Context, entries []model.AutomationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO automation_log (timestamp, run_id, subject, action, old_value, new_value, reason, status)
				VALUES (?,?,?,?,?,?,?,?)`,
				ts.Format("2006-01-02 15:04:05"), e.RunID, e.Subject, e.Action,
				e.OldValue, e.NewValue, e.Reason, string(e.Status),
			)
			if err != nil {
				return eris.Wrap(err, "sqlite: append automation log")
			}
		}
		return nil
	})
}

func (s *SQLiteStore) AutomationLogs(ctx context.Context, limit int) ([]model.AutomationLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, run_id, COALESCE(subject,''), COALESCE(action,''),
		       old_value, new_value, COALESCE(reason,''), COALESCE(status,'')
		FROM automation_log ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list automation logs")
	}
	defer rows.Close()

	var out []model.AutomationLogEntry
	for rows.Next() {
		var e model.AutomationLogEntry
		var ts, status string
		if err := rows.Scan(&ts, &e.RunID, &e.Subject, &e.Action,
			&e.OldValue, &e.NewValue, &e.Reason, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan automation log")
		}
		e.Timestamp, _ = time.ParseInLocation("2006-01-02 15:04:05", ts, time.Local)
		e.Status = model.RunStatus(status)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate automation logs")
}

// --- System state ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var val sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_state WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get state %s", key)
	}
	return val.String, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO system_state (key, value) VALUES (?,?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			key, value,
		)
		return eris.Wrapf(err, "sqlite: set state %s", key)
	})
}

// SetSyncStatus records the outcome of a scheduler run so external observers
// only need to read state, never watch logs. Long error details are truncated.
func (s *SQLiteStore) SetSyncStatus(ctx context.Context, status, detail string, days int) error {
	if len(detail) > 1000 {
		detail = detail[:1000]
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for key, val := range map[string]string{
			model.KeySyncStatus: status,
			model.KeySyncError:  detail,
			model.KeySyncDays:   strconv.Itoa(days),
		} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO system_state (key, value) VALUES (?,?)
				ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
				key, val,
			); err != nil {
				return eris.Wrapf(err, "sqlite: set sync status %s", key)
			}
		}
		return nil
	})
}
