package postgresstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/postgresstore/internal/adapters"
)

const (
	dialectPostgres = "postgres"

	tableTitles       = "titles"
	tableCopies       = "copies"
	tableLoans        = "loans"
	tableReservations = "reservations"
	tableFines        = "fines"
	tablePayments     = "payments"
	tableSanctions    = "sanctions"
	tableAuditOutbox  = "audit_outbox"

	castUUID      = "?::uuid"
	castTimestamp = "?::timestamp with time zone"
	castNumeric   = "?::numeric"
	castJsonb     = "?::jsonb"

	stateFinalized = string(circulation.LoanFinalized)
	statePending   = string(circulation.ReservationPending)
	stateFulfilled = string(circulation.ReservationFulfilled)
)

var dialect = goqu.Dialect(dialectPostgres)

// ErrBuildingQueryFailed is returned when a SQL statement cannot be built.
var ErrBuildingQueryFailed = errors.New("building sql query failed")

// ErrScanningRowFailed is returned when a database row cannot be scanned.
var ErrScanningRowFailed = errors.New("scanning database row failed")

// Compile-time contract assertion.
var _ circulation.Transaction = (*transaction)(nil)

// transaction implements circulation.Transaction on one SERIALIZABLE
// database transaction. All statements are built with goqu and interpolated
// with explicit casts, following the adapter contract of query strings only.
type transaction struct {
	ctx    context.Context
	db     adapters.DBTx
	logger circulation.Logger
}

func uid(id uuid.UUID) exp.LiteralExpression {
	return goqu.L(castUUID, id.String())
}

func uidPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}

	return uid(*id)
}

func ts(t time.Time) exp.LiteralExpression {
	return goqu.L(castTimestamp, t.UTC().Format(time.RFC3339Nano))
}

func tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return ts(*t)
}

func num(d decimal.Decimal) exp.LiteralExpression {
	return goqu.L(castNumeric, d.String())
}

func (t *transaction) query(sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := t.db.Query(t.ctx, sqlQuery)
	t.logSQL(sqlQuery, time.Since(start))

	if err != nil {
		return nil, errors.Join(circulation.ErrStorageUnavailable, err)
	}

	return rows, nil
}

func (t *transaction) exec(sqlQuery string) (int64, error) {
	start := time.Now()
	result, err := t.db.Exec(t.ctx, sqlQuery)
	t.logSQL(sqlQuery, time.Since(start))

	if err != nil {
		return 0, errors.Join(circulation.ErrStorageUnavailable, err)
	}

	rowsAffected, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return 0, errors.Join(circulation.ErrStorageUnavailable, affectedErr)
	}

	return rowsAffected, nil
}

// execVersioned executes a version-guarded update; zero affected rows means
// the read version is stale and the unit of work must be retried.
func (t *transaction) execVersioned(sqlQuery string) error {
	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrConcurrencyConflict
	}

	return nil
}

func (t *transaction) logSQL(sqlQuery string, duration time.Duration) {
	if t.logger != nil {
		t.logger.Debug(logMsgSQLExecuted, logAttrQuery, sqlQuery, logAttrDurationMS, duration.Milliseconds())
	}
}

func (t *transaction) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if t.logger != nil {
			t.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// GetTitle implements circulation.Transaction.
func (t *transaction) GetTitle(id uuid.UUID) (circulation.Title, error) {
	sqlQuery, _, buildErr := dialect.From(tableTitles).
		Select(goqu.L("id::text"), goqu.C("total_copies"), goqu.C("available_copies"), goqu.C("version")).
		Where(goqu.C("id").Eq(uid(id))).
		ToSQL()
	if buildErr != nil {
		return circulation.Title{}, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return circulation.Title{}, err
	}
	defer t.closeRows(rows)

	if !rows.Next() {
		return circulation.Title{}, circulation.ErrTitleNotFound
	}

	var (
		idText  string
		title   circulation.Title
		scanErr = rows.Scan(&idText, &title.TotalCopies, &title.AvailableCopies, &title.Version)
	)
	if scanErr != nil {
		return circulation.Title{}, errors.Join(ErrScanningRowFailed, scanErr)
	}

	parsed, parseErr := uuid.Parse(idText)
	if parseErr != nil {
		return circulation.Title{}, errors.Join(ErrScanningRowFailed, parseErr)
	}

	title.ID = parsed

	return title, nil
}

// InsertTitle implements circulation.Transaction.
func (t *transaction) InsertTitle(title circulation.Title) error {
	sqlQuery, _, buildErr := dialect.Insert(tableTitles).
		Rows(goqu.Record{
			"id":               uid(title.ID),
			"total_copies":     title.TotalCopies,
			"available_copies": title.AvailableCopies,
			"version":          title.Version,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// UpdateTitle implements circulation.Transaction.
func (t *transaction) UpdateTitle(title circulation.Title) error {
	sqlQuery, _, buildErr := dialect.Update(tableTitles).
		Set(goqu.Record{
			"total_copies":     title.TotalCopies,
			"available_copies": title.AvailableCopies,
			"version":          title.Version + 1,
		}).
		Where(goqu.C("id").Eq(uid(title.ID)), goqu.C("version").Eq(title.Version)).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return t.execVersioned(sqlQuery)
}

// GetCopy implements circulation.Transaction.
func (t *transaction) GetCopy(id uuid.UUID) (circulation.Copy, error) {
	sqlQuery, _, buildErr := dialect.From(tableCopies).
		Select(goqu.L("id::text"), goqu.L("title_id::text"), goqu.C("state"), goqu.C("version")).
		Where(goqu.C("id").Eq(uid(id))).
		ToSQL()
	if buildErr != nil {
		return circulation.Copy{}, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return circulation.Copy{}, err
	}
	defer t.closeRows(rows)

	if !rows.Next() {
		return circulation.Copy{}, circulation.ErrCopyNotFound
	}

	return scanCopy(rows)
}

// InsertCopy implements circulation.Transaction.
func (t *transaction) InsertCopy(cpy circulation.Copy) error {
	sqlQuery, _, buildErr := dialect.Insert(tableCopies).
		Rows(goqu.Record{
			"id":       uid(cpy.ID),
			"title_id": uid(cpy.TitleID),
			"state":    string(cpy.State),
			"version":  cpy.Version,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// UpdateCopy implements circulation.Transaction.
func (t *transaction) UpdateCopy(cpy circulation.Copy) error {
	sqlQuery, _, buildErr := dialect.Update(tableCopies).
		Set(goqu.Record{
			"state":   string(cpy.State),
			"version": cpy.Version + 1,
		}).
		Where(goqu.C("id").Eq(uid(cpy.ID)), goqu.C("version").Eq(cpy.Version)).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return t.execVersioned(sqlQuery)
}

// GetLoan implements circulation.Transaction.
func (t *transaction) GetLoan(id uuid.UUID) (circulation.Loan, error) {
	return t.selectOneLoan(goqu.C("id").Eq(uid(id)), circulation.ErrLoanNotFound)
}

// OpenLoanByCopy implements circulation.Transaction.
func (t *transaction) OpenLoanByCopy(copyID uuid.UUID) (circulation.Loan, bool, error) {
	loan, err := t.selectOneLoan(
		goqu.And(goqu.C("copy_id").Eq(uid(copyID)), goqu.C("state").Neq(stateFinalized)),
		circulation.ErrLoanNotFound,
	)

	if errors.Is(err, circulation.ErrLoanNotFound) {
		return circulation.Loan{}, false, nil
	}

	if err != nil {
		return circulation.Loan{}, false, err
	}

	return loan, true, nil
}

func (t *transaction) selectOneLoan(where exp.Expression, notFound error) (circulation.Loan, error) {
	sqlQuery, _, buildErr := dialect.From(tableLoans).
		Select(loanColumns()...).
		Where(where).
		ToSQL()
	if buildErr != nil {
		return circulation.Loan{}, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return circulation.Loan{}, err
	}
	defer t.closeRows(rows)

	if !rows.Next() {
		return circulation.Loan{}, notFound
	}

	return scanLoan(rows)
}

// OpenLoanCountByPatron implements circulation.Transaction.
func (t *transaction) OpenLoanCountByPatron(patronID uuid.UUID) (int, error) {
	sqlQuery, _, buildErr := dialect.From(tableLoans).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("patron_id").Eq(uid(patronID)), goqu.C("state").Neq(stateFinalized)).
		ToSQL()
	if buildErr != nil {
		return 0, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return 0, err
	}
	defer t.closeRows(rows)

	count := int64(0)

	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			return 0, errors.Join(ErrScanningRowFailed, scanErr)
		}
	}

	return int(count), nil
}

// InsertLoan implements circulation.Transaction.
func (t *transaction) InsertLoan(loan circulation.Loan) error {
	sqlQuery, _, buildErr := dialect.Insert(tableLoans).
		Rows(goqu.Record{
			"id":            uid(loan.ID),
			"patron_id":     uid(loan.PatronID),
			"copy_id":       uid(loan.CopyID),
			"title_id":      uid(loan.TitleID),
			"started_at":    ts(loan.StartedAt),
			"due_at":        ts(loan.DueAt),
			"returned_at":   tsPtr(loan.ReturnedAt),
			"state":         string(loan.State),
			"renewal_count": loan.RenewalCount,
			"version":       loan.Version,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// UpdateLoan implements circulation.Transaction.
func (t *transaction) UpdateLoan(loan circulation.Loan) error {
	sqlQuery, _, buildErr := dialect.Update(tableLoans).
		Set(goqu.Record{
			"due_at":        ts(loan.DueAt),
			"returned_at":   tsPtr(loan.ReturnedAt),
			"state":         string(loan.State),
			"renewal_count": loan.RenewalCount,
			"version":       loan.Version + 1,
		}).
		Where(goqu.C("id").Eq(uid(loan.ID)), goqu.C("version").Eq(loan.Version)).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return t.execVersioned(sqlQuery)
}

// GetReservation implements circulation.Transaction.
func (t *transaction) GetReservation(id uuid.UUID) (circulation.Reservation, error) {
	reservations, err := t.selectReservations(goqu.C("id").Eq(uid(id)))
	if err != nil {
		return circulation.Reservation{}, err
	}

	if len(reservations) == 0 {
		return circulation.Reservation{}, circulation.ErrReservationNotFound
	}

	return reservations[0], nil
}

// InsertReservation implements circulation.Transaction.
func (t *transaction) InsertReservation(reservation circulation.Reservation) error {
	sqlQuery, _, buildErr := dialect.Insert(tableReservations).
		Rows(goqu.Record{
			"id":           uid(reservation.ID),
			"patron_id":    uid(reservation.PatronID),
			"title_id":     uid(reservation.TitleID),
			"priority":     reservation.Priority,
			"requested_at": ts(reservation.RequestedAt),
			"expires_at":   ts(reservation.ExpiresAt),
			"held_copy_id": uidPtr(reservation.HeldCopyID),
			"state":        string(reservation.State),
			"version":      reservation.Version,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// UpdateReservation implements circulation.Transaction.
func (t *transaction) UpdateReservation(reservation circulation.Reservation) error {
	sqlQuery, _, buildErr := dialect.Update(tableReservations).
		Set(goqu.Record{
			"expires_at":   ts(reservation.ExpiresAt),
			"held_copy_id": uidPtr(reservation.HeldCopyID),
			"state":        string(reservation.State),
			"version":      reservation.Version + 1,
		}).
		Where(goqu.C("id").Eq(uid(reservation.ID)), goqu.C("version").Eq(reservation.Version)).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return t.execVersioned(sqlQuery)
}

// PendingReservationsByTitle implements circulation.Transaction.
func (t *transaction) PendingReservationsByTitle(titleID uuid.UUID) ([]circulation.Reservation, error) {
	return t.selectReservations(
		goqu.And(goqu.C("title_id").Eq(uid(titleID)), goqu.C("state").Eq(statePending)),
	)
}

// HasPendingReservation implements circulation.Transaction.
func (t *transaction) HasPendingReservation(titleID uuid.UUID, patronID uuid.UUID) (bool, error) {
	reservations, err := t.selectReservations(goqu.And(
		goqu.C("title_id").Eq(uid(titleID)),
		goqu.C("patron_id").Eq(uid(patronID)),
		goqu.C("state").Eq(statePending),
	))
	if err != nil {
		return false, err
	}

	return len(reservations) > 0, nil
}

// FulfilledReservationByCopy implements circulation.Transaction.
func (t *transaction) FulfilledReservationByCopy(copyID uuid.UUID) (circulation.Reservation, bool, error) {
	reservations, err := t.selectReservations(goqu.And(
		goqu.C("held_copy_id").Eq(uid(copyID)),
		goqu.C("state").Eq(stateFulfilled),
	))
	if err != nil {
		return circulation.Reservation{}, false, err
	}

	if len(reservations) == 0 {
		return circulation.Reservation{}, false, nil
	}

	return reservations[0], true, nil
}

// StaleReservations implements circulation.Transaction.
func (t *transaction) StaleReservations(asOf time.Time) ([]circulation.Reservation, error) {
	return t.selectReservations(goqu.And(
		goqu.C("expires_at").Lt(ts(asOf)),
		goqu.Or(
			goqu.C("state").Eq(statePending),
			goqu.And(goqu.C("state").Eq(stateFulfilled), goqu.C("held_copy_id").IsNotNull()),
		),
	))
}

func (t *transaction) selectReservations(where exp.Expression) ([]circulation.Reservation, error) {
	sqlQuery, _, buildErr := dialect.From(tableReservations).
		Select(
			goqu.L("id::text"), goqu.L("patron_id::text"), goqu.L("title_id::text"),
			goqu.C("priority"), goqu.C("requested_at"), goqu.C("expires_at"),
			goqu.L("held_copy_id::text"), goqu.C("state"), goqu.C("version"),
		).
		Where(where).
		Order(goqu.C("priority").Desc(), goqu.C("requested_at").Asc()).
		ToSQL()
	if buildErr != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return nil, err
	}
	defer t.closeRows(rows)

	var reservations []circulation.Reservation

	for rows.Next() {
		reservation, scanErr := scanReservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		reservations = append(reservations, reservation)
	}

	return reservations, nil
}

// GetFine implements circulation.Transaction.
func (t *transaction) GetFine(id uuid.UUID) (circulation.Fine, error) {
	fines, err := t.selectFines(goqu.C("id").Eq(uid(id)))
	if err != nil {
		return circulation.Fine{}, err
	}

	if len(fines) == 0 {
		return circulation.Fine{}, circulation.ErrFineNotFound
	}

	return fines[0], nil
}

// FineByLoan implements circulation.Transaction.
func (t *transaction) FineByLoan(loanID uuid.UUID) (circulation.Fine, bool, error) {
	fines, err := t.selectFines(goqu.C("loan_id").Eq(uid(loanID)))
	if err != nil {
		return circulation.Fine{}, false, err
	}

	if len(fines) == 0 {
		return circulation.Fine{}, false, nil
	}

	return fines[0], true, nil
}

// PendingFinesByPatron implements circulation.Transaction.
func (t *transaction) PendingFinesByPatron(patronID uuid.UUID) ([]circulation.Fine, error) {
	return t.selectFines(goqu.And(
		goqu.C("patron_id").Eq(uid(patronID)),
		goqu.C("state").Eq(string(circulation.FinePending)),
	))
}

func (t *transaction) selectFines(where exp.Expression) ([]circulation.Fine, error) {
	sqlQuery, _, buildErr := dialect.From(tableFines).
		Select(
			goqu.L("id::text"), goqu.L("loan_id::text"), goqu.L("patron_id::text"),
			goqu.L("amount::text"), goqu.C("reason"), goqu.C("state"),
			goqu.C("generated_at"), goqu.C("version"),
		).
		Where(where).
		ToSQL()
	if buildErr != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return nil, err
	}
	defer t.closeRows(rows)

	var fines []circulation.Fine

	for rows.Next() {
		fine, scanErr := scanFine(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		fines = append(fines, fine)
	}

	return fines, nil
}

// InsertFine implements circulation.Transaction.
func (t *transaction) InsertFine(fine circulation.Fine) error {
	sqlQuery, _, buildErr := dialect.Insert(tableFines).
		Rows(goqu.Record{
			"id":           uid(fine.ID),
			"loan_id":      uid(fine.LoanID),
			"patron_id":    uid(fine.PatronID),
			"amount":       num(fine.Amount),
			"reason":       fine.Reason,
			"state":        string(fine.State),
			"generated_at": ts(fine.GeneratedAt),
			"version":      fine.Version,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// UpdateFine implements circulation.Transaction.
func (t *transaction) UpdateFine(fine circulation.Fine) error {
	sqlQuery, _, buildErr := dialect.Update(tableFines).
		Set(goqu.Record{
			"state":   string(fine.State),
			"version": fine.Version + 1,
		}).
		Where(goqu.C("id").Eq(uid(fine.ID)), goqu.C("version").Eq(fine.Version)).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return t.execVersioned(sqlQuery)
}

// InsertPayment implements circulation.Transaction.
func (t *transaction) InsertPayment(payment circulation.Payment) error {
	sqlQuery, _, buildErr := dialect.Insert(tablePayments).
		Rows(goqu.Record{
			"id":      uid(payment.ID),
			"fine_id": uid(payment.FineID),
			"amount":  num(payment.Amount),
			"method":  payment.Method,
			"paid_at": ts(payment.PaidAt),
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// PaymentsTotalByFine implements circulation.Transaction.
func (t *transaction) PaymentsTotalByFine(fineID uuid.UUID) (decimal.Decimal, error) {
	sqlQuery, _, buildErr := dialect.From(tablePayments).
		Select(goqu.L("COALESCE(SUM(amount), 0)::text")).
		Where(goqu.C("fine_id").Eq(uid(fineID))).
		ToSQL()
	if buildErr != nil {
		return decimal.Zero, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return decimal.Zero, err
	}
	defer t.closeRows(rows)

	total := decimal.Zero

	if rows.Next() {
		var totalText string

		if scanErr := rows.Scan(&totalText); scanErr != nil {
			return decimal.Zero, errors.Join(ErrScanningRowFailed, scanErr)
		}

		parsed, parseErr := decimal.NewFromString(totalText)
		if parseErr != nil {
			return decimal.Zero, errors.Join(ErrScanningRowFailed, parseErr)
		}

		total = parsed
	}

	return total, nil
}

// GetSanction implements circulation.Transaction.
func (t *transaction) GetSanction(id uuid.UUID) (circulation.Sanction, error) {
	sanctions, err := t.selectSanctions(goqu.C("id").Eq(uid(id)))
	if err != nil {
		return circulation.Sanction{}, err
	}

	if len(sanctions) == 0 {
		return circulation.Sanction{}, circulation.ErrSanctionNotFound
	}

	return sanctions[0], nil
}

// InsertSanction implements circulation.Transaction.
func (t *transaction) InsertSanction(sanction circulation.Sanction) error {
	sqlQuery, _, buildErr := dialect.Insert(tableSanctions).
		Rows(goqu.Record{
			"id":        uid(sanction.ID),
			"patron_id": uid(sanction.PatronID),
			"type":      sanction.Type,
			"reason":    sanction.Reason,
			"starts_at": ts(sanction.StartsAt),
			"ends_at":   ts(sanction.EndsAt),
			"state":     string(sanction.State),
			"version":   sanction.Version,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rowsAffected, err := t.exec(sqlQuery)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrDuplicateEntity
	}

	return nil
}

// UpdateSanction implements circulation.Transaction.
func (t *transaction) UpdateSanction(sanction circulation.Sanction) error {
	sqlQuery, _, buildErr := dialect.Update(tableSanctions).
		Set(goqu.Record{
			"state":   string(sanction.State),
			"version": sanction.Version + 1,
		}).
		Where(goqu.C("id").Eq(uid(sanction.ID)), goqu.C("version").Eq(sanction.Version)).
		ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	return t.execVersioned(sqlQuery)
}

// ActiveSanctionsByPatron implements circulation.Transaction.
func (t *transaction) ActiveSanctionsByPatron(patronID uuid.UUID, at time.Time) ([]circulation.Sanction, error) {
	return t.selectSanctions(goqu.And(
		goqu.C("patron_id").Eq(uid(patronID)),
		goqu.C("state").Eq(string(circulation.SanctionActive)),
		goqu.C("starts_at").Lte(ts(at)),
		goqu.C("ends_at").Gt(ts(at)),
	))
}

func (t *transaction) selectSanctions(where exp.Expression) ([]circulation.Sanction, error) {
	sqlQuery, _, buildErr := dialect.From(tableSanctions).
		Select(
			goqu.L("id::text"), goqu.L("patron_id::text"), goqu.C("type"), goqu.C("reason"),
			goqu.C("starts_at"), goqu.C("ends_at"), goqu.C("state"), goqu.C("version"),
		).
		Where(where).
		ToSQL()
	if buildErr != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	rows, err := t.query(sqlQuery)
	if err != nil {
		return nil, err
	}
	defer t.closeRows(rows)

	var sanctions []circulation.Sanction

	for rows.Next() {
		sanction, scanErr := scanSanction(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		sanctions = append(sanctions, sanction)
	}

	return sanctions, nil
}

// AppendAudit implements circulation.Transaction.
func (t *transaction) AppendAudit(record circulation.AuditRecord) error {
	row := goqu.Record{
		"id":          uid(record.ID),
		"entity_type": record.EntityType,
		"entity_id":   uid(record.EntityID),
		"action":      string(record.Action),
		"after_state": goqu.L(castJsonb, string(record.AfterState)),
		"actor_id":    uid(record.ActorID),
		"occurred_at": ts(record.OccurredAt),
	}

	if record.BeforeState != nil {
		row["before_state"] = goqu.L(castJsonb, string(record.BeforeState))
	}

	sqlQuery, _, buildErr := dialect.Insert(tableAuditOutbox).Rows(row).ToSQL()
	if buildErr != nil {
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	if _, err := t.exec(sqlQuery); err != nil {
		return err
	}

	return nil
}

func loanColumns() []any {
	return []any{
		goqu.L("id::text"), goqu.L("patron_id::text"), goqu.L("copy_id::text"), goqu.L("title_id::text"),
		goqu.C("started_at"), goqu.C("due_at"), goqu.C("returned_at"),
		goqu.C("state"), goqu.C("renewal_count"), goqu.C("version"),
	}
}

func scanCopy(rows adapters.DBRows) (circulation.Copy, error) {
	var (
		idText      string
		titleIDText string
		state       string
		cpy         circulation.Copy
	)

	if scanErr := rows.Scan(&idText, &titleIDText, &state, &cpy.Version); scanErr != nil {
		return circulation.Copy{}, errors.Join(ErrScanningRowFailed, scanErr)
	}

	id, idErr := uuid.Parse(idText)
	if idErr != nil {
		return circulation.Copy{}, errors.Join(ErrScanningRowFailed, idErr)
	}

	titleID, titleErr := uuid.Parse(titleIDText)
	if titleErr != nil {
		return circulation.Copy{}, errors.Join(ErrScanningRowFailed, titleErr)
	}

	cpy.ID = id
	cpy.TitleID = titleID
	cpy.State = circulation.CopyState(state)

	return cpy, nil
}

func scanLoan(rows adapters.DBRows) (circulation.Loan, error) {
	var (
		idText     string
		patronText string
		copyText   string
		titleText  string
		returnedAt sql.NullTime
		state      string
		loan       circulation.Loan
	)

	scanErr := rows.Scan(
		&idText, &patronText, &copyText, &titleText,
		&loan.StartedAt, &loan.DueAt, &returnedAt,
		&state, &loan.RenewalCount, &loan.Version,
	)
	if scanErr != nil {
		return circulation.Loan{}, errors.Join(ErrScanningRowFailed, scanErr)
	}

	ids, parseErr := parseUUIDs(idText, patronText, copyText, titleText)
	if parseErr != nil {
		return circulation.Loan{}, parseErr
	}

	loan.ID, loan.PatronID, loan.CopyID, loan.TitleID = ids[0], ids[1], ids[2], ids[3]
	loan.State = circulation.LoanState(state)

	if returnedAt.Valid {
		returned := returnedAt.Time.UTC()
		loan.ReturnedAt = &returned
	}

	return loan, nil
}

func scanReservation(rows adapters.DBRows) (circulation.Reservation, error) {
	var (
		idText      string
		patronText  string
		titleText   string
		heldCopy    sql.NullString
		state       string
		reservation circulation.Reservation
	)

	scanErr := rows.Scan(
		&idText, &patronText, &titleText,
		&reservation.Priority, &reservation.RequestedAt, &reservation.ExpiresAt,
		&heldCopy, &state, &reservation.Version,
	)
	if scanErr != nil {
		return circulation.Reservation{}, errors.Join(ErrScanningRowFailed, scanErr)
	}

	ids, parseErr := parseUUIDs(idText, patronText, titleText)
	if parseErr != nil {
		return circulation.Reservation{}, parseErr
	}

	reservation.ID, reservation.PatronID, reservation.TitleID = ids[0], ids[1], ids[2]
	reservation.State = circulation.ReservationState(state)

	if heldCopy.Valid {
		heldCopyID, heldErr := uuid.Parse(heldCopy.String)
		if heldErr != nil {
			return circulation.Reservation{}, errors.Join(ErrScanningRowFailed, heldErr)
		}

		reservation.HeldCopyID = &heldCopyID
	}

	return reservation, nil
}

func scanFine(rows adapters.DBRows) (circulation.Fine, error) {
	var (
		idText     string
		loanText   string
		patronText string
		amountText string
		state      string
		fine       circulation.Fine
	)

	scanErr := rows.Scan(
		&idText, &loanText, &patronText, &amountText,
		&fine.Reason, &state, &fine.GeneratedAt, &fine.Version,
	)
	if scanErr != nil {
		return circulation.Fine{}, errors.Join(ErrScanningRowFailed, scanErr)
	}

	ids, parseErr := parseUUIDs(idText, loanText, patronText)
	if parseErr != nil {
		return circulation.Fine{}, parseErr
	}

	amount, amountErr := decimal.NewFromString(amountText)
	if amountErr != nil {
		return circulation.Fine{}, errors.Join(ErrScanningRowFailed, amountErr)
	}

	fine.ID, fine.LoanID, fine.PatronID = ids[0], ids[1], ids[2]
	fine.Amount = amount
	fine.State = circulation.FineState(state)

	return fine, nil
}

func scanSanction(rows adapters.DBRows) (circulation.Sanction, error) {
	var (
		idText     string
		patronText string
		state      string
		sanction   circulation.Sanction
	)

	scanErr := rows.Scan(
		&idText, &patronText, &sanction.Type, &sanction.Reason,
		&sanction.StartsAt, &sanction.EndsAt, &state, &sanction.Version,
	)
	if scanErr != nil {
		return circulation.Sanction{}, errors.Join(ErrScanningRowFailed, scanErr)
	}

	ids, parseErr := parseUUIDs(idText, patronText)
	if parseErr != nil {
		return circulation.Sanction{}, parseErr
	}

	sanction.ID, sanction.PatronID = ids[0], ids[1]
	sanction.State = circulation.SanctionState(state)

	return sanction, nil
}

func parseUUIDs(texts ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(texts))

	for i, text := range texts {
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, errors.Join(ErrScanningRowFailed, err)
		}

		ids[i] = id
	}

	return ids, nil
}
