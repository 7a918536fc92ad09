package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

// DeliveryRepository implements repositories.DeliveryRepository on Postgres.
// The timeline and proof documents are stored as typed JSONB; status writes
// use a compare-and-swap on the previous status.
type DeliveryRepository struct {
	provider *Provider
}

// NewDeliveryRepository constructs a delivery repository bound to the provider.
func NewDeliveryRepository(provider *Provider) (*DeliveryRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: delivery repository requires a provider")
	}
	return &DeliveryRepository{provider: provider}, nil
}

type timelineEntryDoc struct {
	Status    string           `json:"status"`
	Location  *domain.GeoPoint `json:"location,omitempty"`
	Note      *string          `json:"note,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

type locationDoc struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ReportedAt time.Time `json:"reportedAt"`
}

type proofDoc struct {
	Signature *string `json:"signature,omitempty"`
	PhotoURL  *string `json:"photoUrl,omitempty"`
	Note      *string `json:"note,omitempty"`
}

func encodeTimeline(entries []domain.TimelineEntry) ([]byte, error) {
	docs := make([]timelineEntryDoc, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, timelineEntryDoc{
			Status:    string(entry.Status),
			Location:  entry.Location,
			Note:      entry.Note,
			CreatedAt: entry.CreatedAt,
		})
	}
	return json.Marshal(docs)
}

func decodeTimeline(raw []byte) ([]domain.TimelineEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var docs []timelineEntryDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	entries := make([]domain.TimelineEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, domain.TimelineEntry{
			Status:    domain.DeliveryStatus(doc.Status),
			Location:  doc.Location,
			Note:      doc.Note,
			CreatedAt: doc.CreatedAt,
		})
	}
	return entries, nil
}

func encodeTimelineEntry(entry domain.TimelineEntry) ([]byte, error) {
	return json.Marshal(timelineEntryDoc{
		Status:    string(entry.Status),
		Location:  entry.Location,
		Note:      entry.Note,
		CreatedAt: entry.CreatedAt,
	})
}

func (r *DeliveryRepository) Insert(ctx context.Context, tracking domain.DeliveryTracking) error {
	q := r.provider.querier(ctx)

	timeline, err := encodeTimeline(tracking.Timeline)
	if err != nil {
		return repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "encode timeline", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO delivery_tracking (
			id, order_id, driver_id, driver_name, driver_mobile, status,
			timeline, estimated_arrival, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`,
		tracking.ID, tracking.OrderID, tracking.Driver.ID, tracking.Driver.Name,
		tracking.Driver.Mobile, string(tracking.Status), timeline,
		tracking.EstimatedArrival, tracking.CreatedAt)
	if err != nil {
		return repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "insert tracking", err)
	}
	return nil
}

const deliveryColumns = `
	id, order_id, driver_id, driver_name, driver_mobile, status,
	current_location, timeline, proof, estimated_arrival, actual_arrival,
	created_at, updated_at`

func (r *DeliveryRepository) FindByID(ctx context.Context, trackingID string) (domain.DeliveryTracking, error) {
	return r.findBy(ctx, "id", trackingID)
}

func (r *DeliveryRepository) FindByOrder(ctx context.Context, orderID string) (domain.DeliveryTracking, error) {
	return r.findBy(ctx, "order_id", orderID)
}

func (r *DeliveryRepository) findBy(ctx context.Context, column, value string) (domain.DeliveryTracking, error) {
	q := r.provider.querier(ctx)
	row := q.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM delivery_tracking WHERE `+column+` = $1`, value)
	tracking, err := scanTracking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorNotFound, fmt.Sprintf("no tracking for %s %s", column, value), err)
		}
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "find tracking", err)
	}
	return tracking, nil
}

func (r *DeliveryRepository) Reassign(ctx context.Context, trackingID string, driver domain.DriverSnapshot, estimatedArrival *time.Time, entry domain.TimelineEntry, now time.Time) (domain.DeliveryTracking, error) {
	q := r.provider.querier(ctx)

	entryDoc, err := encodeTimelineEntry(entry)
	if err != nil {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "encode timeline entry", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE delivery_tracking
		   SET driver_id = $2, driver_name = $3, driver_mobile = $4,
		       status = $5, estimated_arrival = $6, proof = NULL, actual_arrival = NULL,
		       timeline = timeline || $7::jsonb, updated_at = $8
		 WHERE id = $1`,
		trackingID, driver.ID, driver.Name, driver.Mobile,
		string(domain.DeliveryStatusAssigned), estimatedArrival, entryDoc, now)
	if err != nil {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "reassign tracking", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorNotFound, fmt.Sprintf("tracking %s not found", trackingID), nil)
	}
	return r.FindByID(ctx, trackingID)
}

func (r *DeliveryRepository) AdvanceStatus(ctx context.Context, update repositories.DeliveryStatusUpdate) (domain.DeliveryTracking, error) {
	q := r.provider.querier(ctx)

	entryDoc, err := encodeTimelineEntry(update.Entry)
	if err != nil {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "encode timeline entry", err)
	}

	var proof []byte
	if update.Proof != nil {
		proof, err = json.Marshal(proofDoc{
			Signature: update.Proof.Signature,
			PhotoURL:  update.Proof.PhotoURL,
			Note:      update.Proof.Note,
		})
		if err != nil {
			return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "encode proof", err)
		}
	}

	tag, err := q.Exec(ctx, `
		UPDATE delivery_tracking
		   SET status = $3,
		       timeline = timeline || $4::jsonb,
		       proof = COALESCE($5, proof),
		       actual_arrival = COALESCE($6, actual_arrival),
		       updated_at = $7
		 WHERE id = $1 AND status = $2`,
		update.TrackingID, string(update.PreviousStatus), string(update.Status),
		entryDoc, proof, update.ActualArrival, update.Now)
	if err != nil {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "advance tracking", err)
	}
	if tag.RowsAffected() == 0 {
		current, findErr := r.FindByID(ctx, update.TrackingID)
		if findErr != nil {
			return domain.DeliveryTracking{}, findErr
		}
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(
			repositories.DeliveryErrorConflict,
			fmt.Sprintf("tracking %s: status is %q, expected %q", update.TrackingID, current.Status, update.PreviousStatus),
			nil,
		)
	}
	return r.FindByID(ctx, update.TrackingID)
}

func (r *DeliveryRepository) AppendTimeline(ctx context.Context, trackingID string, entry domain.TimelineEntry, now time.Time) (domain.DeliveryTracking, error) {
	q := r.provider.querier(ctx)

	entryDoc, err := encodeTimelineEntry(entry)
	if err != nil {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "encode timeline entry", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE delivery_tracking
		   SET timeline = timeline || $2::jsonb, updated_at = $3
		 WHERE id = $1`, trackingID, entryDoc, now)
	if err != nil {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "append timeline", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.DeliveryTracking{}, repositories.NewDeliveryError(repositories.DeliveryErrorNotFound, fmt.Sprintf("tracking %s not found", trackingID), nil)
	}
	return r.FindByID(ctx, trackingID)
}

func (r *DeliveryRepository) UpdateLocation(ctx context.Context, trackingID string, loc domain.TrackedLocation) error {
	q := r.provider.querier(ctx)

	doc, err := json.Marshal(locationDoc{Lat: loc.Lat, Lng: loc.Lng, ReportedAt: loc.ReportedAt})
	if err != nil {
		return repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "encode location", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE delivery_tracking SET current_location = $2, updated_at = $3 WHERE id = $1`,
		trackingID, doc, loc.ReportedAt)
	if err != nil {
		return repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "update location", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewDeliveryError(repositories.DeliveryErrorNotFound, fmt.Sprintf("tracking %s not found", trackingID), nil)
	}
	return nil
}

func (r *DeliveryRepository) ListByDriver(ctx context.Context, driverID string, onlyOpen bool, pager domain.Pagination) (domain.CursorPage[domain.DeliveryTracking], error) {
	q := r.provider.querier(ctx)
	limit := normalisePageSize(pager.PageSize)

	query := `SELECT ` + deliveryColumns + ` FROM delivery_tracking WHERE driver_id = $1`
	args := []any{driverID}
	if onlyOpen {
		query += ` AND status NOT IN ('delivered', 'failed')`
	}
	if pager.PageToken != "" {
		args = append(args, pager.PageToken)
		query += fmt.Sprintf(` AND id < $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit+1)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.DeliveryTracking]{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "list by driver", err)
	}
	defer rows.Close()

	var items []domain.DeliveryTracking
	for rows.Next() {
		tracking, err := scanTracking(rows)
		if err != nil {
			return domain.CursorPage[domain.DeliveryTracking]{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "scan tracking", err)
		}
		items = append(items, tracking)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.DeliveryTracking]{}, repositories.NewDeliveryError(repositories.DeliveryErrorUnknown, "list by driver", err)
	}

	page := domain.CursorPage[domain.DeliveryTracking]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = items[limit-1].ID
	}
	return page, nil
}

func scanTracking(row rowScanner) (domain.DeliveryTracking, error) {
	var (
		tracking domain.DeliveryTracking
		location []byte
		timeline []byte
		proof    []byte
	)
	err := row.Scan(
		&tracking.ID, &tracking.OrderID, &tracking.Driver.ID, &tracking.Driver.Name,
		&tracking.Driver.Mobile, &tracking.Status, &location, &timeline, &proof,
		&tracking.EstimatedArrival, &tracking.ActualArrival,
		&tracking.CreatedAt, &tracking.UpdatedAt,
	)
	if err != nil {
		return domain.DeliveryTracking{}, err
	}

	if tracking.Timeline, err = decodeTimeline(timeline); err != nil {
		return domain.DeliveryTracking{}, err
	}
	if len(location) > 0 {
		var doc locationDoc
		if err := json.Unmarshal(location, &doc); err != nil {
			return domain.DeliveryTracking{}, err
		}
		tracking.CurrentLocation = &domain.TrackedLocation{
			GeoPoint:   domain.GeoPoint{Lat: doc.Lat, Lng: doc.Lng},
			ReportedAt: doc.ReportedAt,
		}
	}
	if len(proof) > 0 {
		var doc proofDoc
		if err := json.Unmarshal(proof, &doc); err != nil {
			return domain.DeliveryTracking{}, err
		}
		tracking.Proof = &domain.DeliveryProof{
			Signature: doc.Signature,
			PhotoURL:  doc.PhotoURL,
			Note:      doc.Note,
		}
	}
	return tracking, nil
}
