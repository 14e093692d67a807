// Package pg implements escrow.Store on PostgreSQL through pgx's
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"amanat.org/internal/escrow"
)

const pgErrUniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for the migrate manager.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrNotInitialised is returned when the singleton config row is missing.
var ErrNotInitialised = errors.New("escrow config row missing: run migrations and EnsureConfig")

var errReadOnly = errors.New("write in read-only transaction")

type Store struct {
	db *sql.DB
}

var _ escrow.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// EnsureConfig creates the config row with the given grace period when it
// does not exist yet. An existing row is left untouched.
func (s *Store) EnsureConfig(ctx context.Context, grace time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		insert into escrow_config (id, grace_period_seconds, held)
		values (1, $1, 0)
		on conflict (id) do nothing
	`, int64(grace/time.Second))
	if err != nil {
		return fmt.Errorf("ensure escrow config: %w", err)
	}
	return nil
}

// Update runs fn in a serializable transaction. The config row is locked
// first, so writers are applied one at a time.
func (s *Store) Update(ctx context.Context, fn func(escrow.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	t := &pgTx{q: tx}
	if err := t.loadConfig(ctx, true); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	if t.configDirty {
		if _, err := tx.ExecContext(ctx, `
			update escrow_config set grace_period_seconds = $1, held = $2 where id = 1
		`, int64(t.grace/time.Second), t.held); err != nil {
			return fmt.Errorf("store escrow config: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// View runs fn in a read-only snapshot.
func (s *Store) View(ctx context.Context, fn func(escrow.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	t := &pgTx{q: tx, readOnly: true}
	if err := t.loadConfig(ctx, false); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	q           *sql.Tx
	readOnly    bool
	grace       time.Duration
	held        int64
	configDirty bool
}

func (t *pgTx) loadConfig(ctx context.Context, lock bool) error {
	q := `select grace_period_seconds, held from escrow_config where id = 1`
	if lock {
		q += ` for update`
	}
	var secs int64
	err := t.q.QueryRowContext(ctx, q).Scan(&secs, &t.held)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotInitialised
	}
	if err != nil {
		return fmt.Errorf("load escrow config: %w", err)
	}
	t.grace = time.Duration(secs) * time.Second
	return nil
}

func (t *pgTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

const orgColumns = `id, idx, name, description, creator, trust_score, verified, created_at`

func scanOrganization(row interface{ Scan(...any) error }) (escrow.Organization, error) {
	var (
		org       escrow.Organization
		id, desc  []byte
		idx       int64
		creator   string
		createdAt time.Time
	)
	if err := row.Scan(&id, &idx, &org.Name, &desc, &creator, &org.TrustScore, &org.Verified, &createdAt); err != nil {
		return escrow.Organization{}, err
	}
	if err := copy32(org.ID[:], id); err != nil {
		return escrow.Organization{}, err
	}
	if err := copy32(org.Description[:], desc); err != nil {
		return escrow.Organization{}, err
	}
	org.Index = uint64(idx)
	org.Creator = escrow.Identity(creator)
	org.CreatedAt = createdAt.UTC()
	return org, nil
}

func (t *pgTx) Organization(ctx context.Context, id escrow.ID) (escrow.Organization, bool, error) {
	row := t.q.QueryRowContext(ctx, `select `+orgColumns+` from organizations where id = $1`, id[:])
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.Organization{}, false, nil
	}
	if err != nil {
		return escrow.Organization{}, false, err
	}
	return org, true, nil
}

func (t *pgTx) OrganizationByCreator(ctx context.Context, creator escrow.Identity) (escrow.ID, bool, error) {
	var raw []byte
	err := t.q.QueryRowContext(ctx, `select id from organizations where creator = $1`, string(creator)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.ID{}, false, nil
	}
	if err != nil {
		return escrow.ID{}, false, err
	}
	var id escrow.ID
	if err := copy32(id[:], raw); err != nil {
		return escrow.ID{}, false, err
	}
	return id, true, nil
}

func (t *pgTx) OrganizationCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := t.q.QueryRowContext(ctx, `select count(*) from organizations`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (t *pgTx) ListOrganizations(ctx context.Context, from uint64, limit int) ([]escrow.Organization, error) {
	rows, err := t.q.QueryContext(ctx, `
		select `+orgColumns+`
		from organizations
		where idx >= $1
		order by idx asc
		limit $2
	`, int64(from), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []escrow.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (t *pgTx) PutOrganization(ctx context.Context, org escrow.Organization) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		insert into organizations (`+orgColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (id) do update
		set trust_score = excluded.trust_score,
		    verified = excluded.verified
	`, org.ID[:], int64(org.Index), org.Name, org.Description[:], string(org.Creator), org.TrustScore, org.Verified, org.CreatedAt)
	return mapWriteError(err)
}

const campaignColumns = `id, organization_id, idx, name, description, target_amount,
	total_raised, total_withdrawn, total_refunded, timeline, completed, epoch, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (escrow.Campaign, error) {
	var (
		c             escrow.Campaign
		id, org, desc []byte
		idx, epoch    int64
		createdAt     time.Time
	)
	err := row.Scan(&id, &org, &idx, &c.Name, &desc, &c.TargetAmount,
		&c.TotalRaised, &c.TotalWithdrawn, &c.TotalRefunded, &c.Timeline, &c.Completed, &epoch, &createdAt)
	if err != nil {
		return escrow.Campaign{}, err
	}
	for _, f := range []struct {
		dst []byte
		src []byte
	}{{c.ID[:], id}, {c.OrganizationID[:], org}, {c.Description[:], desc}} {
		if err := copy32(f.dst, f.src); err != nil {
			return escrow.Campaign{}, err
		}
	}
	c.Index = uint64(idx)
	c.Epoch = uint64(epoch)
	c.CreatedAt = createdAt.UTC()
	return c, nil
}

func (t *pgTx) Campaign(ctx context.Context, id escrow.ID) (escrow.Campaign, bool, error) {
	row := t.q.QueryRowContext(ctx, `select `+campaignColumns+` from campaigns where id = $1`, id[:])
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.Campaign{}, false, nil
	}
	if err != nil {
		return escrow.Campaign{}, false, err
	}
	return c, true, nil
}

func (t *pgTx) CampaignCount(ctx context.Context, org escrow.ID) (uint64, error) {
	var n int64
	if err := t.q.QueryRowContext(ctx, `select count(*) from campaigns where organization_id = $1`, org[:]).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (t *pgTx) ListCampaigns(ctx context.Context, org escrow.ID) ([]escrow.Campaign, error) {
	rows, err := t.q.QueryContext(ctx, `
		select `+campaignColumns+`
		from campaigns
		where organization_id = $1
		order by idx asc
	`, org[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []escrow.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) PutCampaign(ctx context.Context, c escrow.Campaign) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		insert into campaigns (`+campaignColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		on conflict (id) do update
		set total_raised = excluded.total_raised,
		    total_withdrawn = excluded.total_withdrawn,
		    total_refunded = excluded.total_refunded,
		    completed = excluded.completed,
		    epoch = excluded.epoch
	`, c.ID[:], c.OrganizationID[:], int64(c.Index), c.Name, c.Description[:], c.TargetAmount,
		c.TotalRaised, c.TotalWithdrawn, c.TotalRefunded, c.Timeline, c.Completed, int64(c.Epoch), c.CreatedAt)
	return mapWriteError(err)
}

func (t *pgTx) Donation(ctx context.Context, campaign escrow.ID, donor escrow.Identity) (escrow.Donation, error) {
	d := escrow.Donation{CampaignID: campaign, Donor: donor}
	var epoch int64
	err := t.q.QueryRowContext(ctx, `
		select amount, epoch from donations where campaign_id = $1 and donor = $2
	`, campaign[:], string(donor)).Scan(&d.Amount, &epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return d, nil
	}
	if err != nil {
		return escrow.Donation{}, err
	}
	d.Epoch = uint64(epoch)
	return d, nil
}

func (t *pgTx) PutDonation(ctx context.Context, d escrow.Donation) error {
	if err := t.writable(); err != nil {
		return err
	}
	if d.Amount == 0 {
		_, err := t.q.ExecContext(ctx, `delete from donations where campaign_id = $1 and donor = $2`,
			d.CampaignID[:], string(d.Donor))
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		insert into donations (campaign_id, donor, amount, epoch)
		values ($1, $2, $3, $4)
		on conflict (campaign_id, donor) do update
		set amount = excluded.amount, epoch = excluded.epoch
	`, d.CampaignID[:], string(d.Donor), d.Amount, int64(d.Epoch))
	return mapWriteError(err)
}

func (t *pgTx) GracePeriod(context.Context) (time.Duration, error) { return t.grace, nil }

func (t *pgTx) SetGracePeriod(_ context.Context, d time.Duration) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.grace = d
	t.configDirty = true
	return nil
}

func (t *pgTx) Held(context.Context) (int64, error) { return t.held, nil }

func (t *pgTx) SetHeld(_ context.Context, amount int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.held = amount
	t.configDirty = true
	return nil
}

func (t *pgTx) Balance(ctx context.Context, account escrow.Identity) (int64, error) {
	var bal int64
	err := t.q.QueryRowContext(ctx, `select balance from payout_accounts where identity = $1`, string(account)).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

func (t *pgTx) SetBalance(ctx context.Context, account escrow.Identity, amount int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		insert into payout_accounts (identity, balance)
		values ($1, $2)
		on conflict (identity) do update set balance = excluded.balance
	`, string(account), amount)
	return err
}

// --- helpers ---

func copy32(dst, src []byte) error {
	if len(src) != 32 {
		return fmt.Errorf("expected 32-byte value, got %d bytes", len(src))
	}
	copy(dst, src)
	return nil
}

func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return escrow.ErrAlreadyExists
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
