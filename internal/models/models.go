package models

import (
	"encoding/json"
	"time"
)

type OfferStatus string

const (
	// Upstream "accepted" is canonicalized to "approved" for display.
	// Upstream legacy "purchased" is canonicalized to "reserved".
	OfferPending   OfferStatus = "pending"
	OfferApproved  OfferStatus = "approved"
	OfferReserved  OfferStatus = "reserved"
	OfferPaid      OfferStatus = "paid"
	OfferRejected  OfferStatus = "rejected"
	OfferExpired   OfferStatus = "expired"
	OfferCancelled OfferStatus = "cancelled"
)

// ProductSnapshot is the denormalized product view carried on every offer
// so readers never need a second round trip.
type ProductSnapshot struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Thumbnail     string          `json:"thumbnail,omitempty"`
	Stock         *int64          `json:"stock,omitempty"`
	PreviousPrice *float64        `json:"previous_price,omitempty"`
	PriceTiers    json.RawMessage `json:"price_tiers,omitempty"`
}

type PartySnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Offer is the normalized view of a negotiated price/quantity proposal.
// ExpiresAt and PurchaseDeadline stay raw strings because upstream rows may
// carry malformed timestamps; the normalizer treats those as "not expired".
type Offer struct {
	ID               string          `json:"id"`
	Status           OfferStatus     `json:"status"`
	Price            float64         `json:"price"`
	Quantity         int64           `json:"quantity"`
	Product          ProductSnapshot `json:"product"`
	Buyer            PartySnapshot   `json:"buyer"`
	Supplier         PartySnapshot   `json:"supplier"`
	Message          string          `json:"message,omitempty"`
	ExpiresAt        string          `json:"expires_at,omitempty"`
	PurchaseDeadline string          `json:"purchase_deadline,omitempty"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// OfferRow is a raw row as returned by the persistence collaborator, before
// normalization. Price and quantity live in whichever of the historically
// named columns is populated.
type OfferRow struct {
	ID                  string          `json:"id"`
	Status              string          `json:"status"`
	OfferedPrice        *float64        `json:"offered_price"`
	Price               *float64        `json:"price"`
	OfferedQuantity     *int64          `json:"offered_quantity"`
	Quantity            *int64          `json:"quantity"`
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	ProductThumbnail    string          `json:"product_thumbnail"`
	CurrentStock        *int64          `json:"current_stock"`
	BasePriceAtOffer    *float64        `json:"base_price_at_offer"`
	CurrentProductPrice *float64        `json:"current_product_price"`
	PriceTiers          json.RawMessage `json:"price_tiers"`
	BuyerID             string          `json:"buyer_id"`
	BuyerName           string          `json:"buyer_name"`
	SupplierID          string          `json:"supplier_id"`
	SupplierName        string          `json:"supplier_name"`
	Message             string          `json:"message"`
	ExpiresAt           string          `json:"expires_at"`
	PurchaseDeadline    string          `json:"purchase_deadline"`
	RejectionReason     string          `json:"rejection_reason"`
	CancelReason        string          `json:"cancel_reason"`
	CreatedAt           time.Time       `json:"created_at"`
}

// CartItem is one line of the external cart collection. Lines created
// outside the offer flow carry no OfferID and are never pruned.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	OfferID   string  `json:"offer_id,omitempty"`
}

// LimitsRow is the raw reply of the backend limits check.
type LimitsRow struct {
	Allowed       bool   `json:"allowed"`
	ProductCount  int    `json:"product_count"`
	SupplierCount int    `json:"supplier_count"`
	ProductLimit  int    `json:"product_limit"`
	SupplierLimit int    `json:"supplier_limit"`
	Reason        string `json:"reason"`
}

// LimitsResult is the validator's answer. CurrentCount and Limit mirror
// ProductCount and ProductLimit for callers of the older single-limit shape.
type LimitsResult struct {
	Allowed       bool   `json:"allowed"`
	CurrentCount  int    `json:"current_count"`
	ProductCount  int    `json:"product_count"`
	SupplierCount int    `json:"supplier_count"`
	Limit         int    `json:"limit"`
	ProductLimit  int    `json:"product_limit"`
	SupplierLimit int    `json:"supplier_limit"`
	Reason        string `json:"reason,omitempty"`
	Err           string `json:"error,omitempty"`
}

type CreateOfferRequest struct {
	BuyerID     string  `json:"buyer_id"`
	SupplierID  string  `json:"supplier_id"`
	ProductID   string  `json:"product_id"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	Message     string  `json:"message,omitempty"`
	BuyerName   string  `json:"buyer_name,omitempty"`
	ProductName string  `json:"product_name,omitempty"`
}

type CreateOfferReply struct {
	OfferID   string `json:"offer_id"`
	ExpiresAt string `json:"expires_at"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Err       string `json:"error,omitempty"`
}

type RespondReply struct {
	PurchaseDeadline string `json:"purchase_deadline,omitempty"`
}

type TierValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
