package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"offersync/internal/models"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Store is the Postgres persistence collaborator. List queries go through
// named set-returning procedures; offers_with_details is the denormalized
// view read directly when a procedure is missing.
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const offerColumns = `
	id, status, offered_price, price, offered_quantity, quantity,
	product_id, product_name, product_thumbnail, current_stock,
	base_price_at_offer, current_product_price, price_tiers,
	buyer_id, buyer_name, supplier_id, supplier_name,
	message, expires_at, purchase_deadline, rejection_reason,
	cancel_reason, created_at`

// OfferList calls one of the list procedures (get_buyer_offers,
// get_supplier_offers). The procedure name is an engine-owned constant,
// never caller input.
func (s *Store) OfferList(ctx context.Context, procedure, actorID string) ([]models.OfferRow, error) {
	rows, err := s.Pool.Query(ctx, "SELECT "+offerColumns+" FROM "+procedure+"($1)", actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOfferRows(rows)
}

// OfferView is the fallback read on the detail view, filtered by buyer_id
// or supplier_id.
func (s *Store) OfferView(ctx context.Context, column, actorID string) ([]models.OfferRow, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT "+offerColumns+" FROM offers_with_details WHERE "+column+"=$1 ORDER BY created_at DESC",
		actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOfferRows(rows)
}

func scanOfferRows(rows pgx.Rows) ([]models.OfferRow, error) {
	var out []models.OfferRow
	for rows.Next() {
		var r models.OfferRow
		var thumbnail, buyerName, supplierName, productName sql.NullString
		var message, rejectionReason, cancelReason sql.NullString
		var offeredPrice, price, basePrice, currentPrice sql.NullFloat64
		var offeredQty, qty, stock sql.NullInt64
		var priceTiers []byte
		var expiresAt, purchaseDeadline sql.NullTime

		err := rows.Scan(
			&r.ID,
			&r.Status,
			&offeredPrice,
			&price,
			&offeredQty,
			&qty,
			&r.ProductID,
			&productName,
			&thumbnail,
			&stock,
			&basePrice,
			&currentPrice,
			&priceTiers,
			&r.BuyerID,
			&buyerName,
			&r.SupplierID,
			&supplierName,
			&message,
			&expiresAt,
			&purchaseDeadline,
			&rejectionReason,
			&cancelReason,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if offeredPrice.Valid {
			r.OfferedPrice = &offeredPrice.Float64
		}
		if price.Valid {
			r.Price = &price.Float64
		}
		if offeredQty.Valid {
			r.OfferedQuantity = &offeredQty.Int64
		}
		if qty.Valid {
			r.Quantity = &qty.Int64
		}
		if stock.Valid {
			r.CurrentStock = &stock.Int64
		}
		if basePrice.Valid {
			r.BasePriceAtOffer = &basePrice.Float64
		}
		if currentPrice.Valid {
			r.CurrentProductPrice = &currentPrice.Float64
		}
		r.ProductName = productName.String
		r.ProductThumbnail = thumbnail.String
		r.BuyerName = buyerName.String
		r.SupplierName = supplierName.String
		r.Message = message.String
		r.RejectionReason = rejectionReason.String
		r.CancelReason = cancelReason.String
		r.PriceTiers = priceTiers
		if expiresAt.Valid {
			r.ExpiresAt = expiresAt.Time.UTC().Format(time.RFC3339)
		}
		if purchaseDeadline.Valid {
			r.PurchaseDeadline = purchaseDeadline.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) OfferLimits(ctx context.Context, buyerID, supplierID, productID string) (models.LimitsRow, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT allowed, product_count, supplier_count, product_limit, supplier_limit, reason
		FROM validate_offer_limits($1, $2, $3)
	`, buyerID, supplierID, productID)

	var lr models.LimitsRow
	var reason sql.NullString
	err := row.Scan(&lr.Allowed, &lr.ProductCount, &lr.SupplierCount, &lr.ProductLimit, &lr.SupplierLimit, &reason)
	if err != nil {
		return models.LimitsRow{}, err
	}
	lr.Reason = reason.String
	return lr, nil
}

func (s *Store) CreateOffer(ctx context.Context, req models.CreateOfferRequest) (models.CreateOfferReply, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT offer_id, expires_at, duplicate, error
		FROM create_offer($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, req.BuyerID, req.SupplierID, req.ProductID, req.Price, req.Quantity, req.Message)

	var reply models.CreateOfferReply
	var offerID, errMsg sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&offerID, &expiresAt, &reply.Duplicate, &errMsg); err != nil {
		return models.CreateOfferReply{}, err
	}
	reply.OfferID = offerID.String
	reply.Err = errMsg.String
	if expiresAt.Valid {
		reply.ExpiresAt = expiresAt.Time.UTC().Format(time.RFC3339)
	}
	return reply, nil
}

func (s *Store) RespondOffer(ctx context.Context, offerID string, accept bool, reason string) (models.RespondReply, error) {
	if accept {
		row := s.Pool.QueryRow(ctx, "SELECT purchase_deadline FROM accept_offer($1)", offerID)
		var deadline sql.NullTime
		if err := row.Scan(&deadline); err != nil {
			return models.RespondReply{}, err
		}
		var reply models.RespondReply
		if deadline.Valid {
			reply.PurchaseDeadline = deadline.Time.UTC().Format(time.RFC3339)
		}
		return reply, nil
	}
	_, err := s.Pool.Exec(ctx, "SELECT reject_offer($1, NULLIF($2, ''))", offerID, reason)
	return models.RespondReply{}, err
}

func (s *Store) CancelOffer(ctx context.Context, offerID string) error {
	_, err := s.Pool.Exec(ctx, "SELECT cancel_offer($1)", offerID)
	return err
}

func (s *Store) ReserveOffer(ctx context.Context, offerID, orderID string) error {
	_, err := s.Pool.Exec(ctx, "SELECT mark_offer_as_purchased($1, NULLIF($2, ''))", offerID, orderID)
	return err
}

func (s *Store) DeleteOffer(ctx context.Context, offerID string) error {
	_, err := s.Pool.Exec(ctx, "DELETE FROM offers WHERE id=$1", offerID)
	return err
}

func (s *Store) PriceTiers(ctx context.Context, productID string, quantity int64, price float64) (models.TierValidation, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT valid, reason FROM validate_offer_against_tiers($1, $2, $3)
	`, productID, quantity, price)

	var tv models.TierValidation
	var reason sql.NullString
	if err := row.Scan(&tv.Valid, &reason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TierValidation{Valid: true}, nil
		}
		return models.TierValidation{}, err
	}
	tv.Reason = reason.String
	return tv, nil
}
