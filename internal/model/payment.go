package model

import (
	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentMethodGateway PaymentMethod = "GATEWAY"
	PaymentMethodCash    PaymentMethod = "CASH"
)

type PaymentTiming string

const (
	PaymentTimingAdvance     PaymentTiming = "ADVANCE"
	PaymentTimingPostService PaymentTiming = "POST_SERVICE"
)

type PaymentIntentStatus string

const (
	PaymentIntentCollectOnDelivery    PaymentIntentStatus = "COLLECT_ON_DELIVERY"
	PaymentIntentAwaitingConfirmation PaymentIntentStatus = "AWAITING_CONFIRMATION"
	PaymentIntentDeferred             PaymentIntentStatus = "DEFERRED"
	PaymentIntentSucceeded            PaymentIntentStatus = "SUCCEEDED"
	PaymentIntentFailed               PaymentIntentStatus = "FAILED"
)

// Settled reports whether the intent reached a terminal payment outcome.
func (s PaymentIntentStatus) Settled() bool {
	return s == PaymentIntentSucceeded || s == PaymentIntentFailed
}

// PaymentIntent records how a booking is going to be paid.
type PaymentIntent struct {
	Base
	BookingID        uuid.UUID           `db:"booking_id" json:"booking_id"`
	CustomerID       uuid.UUID           `db:"customer_id" json:"customer_id"`
	Amount           float64             `db:"amount" json:"amount"`
	Method           PaymentMethod       `db:"method" json:"method"`
	Timing           PaymentTiming       `db:"timing" json:"timing"`
	Status           PaymentIntentStatus `db:"status" json:"status"`
	GatewayReference *string             `db:"gateway_reference" json:"gateway_reference,omitempty"`
	RedirectURL      *string             `db:"redirect_url" json:"redirect_url,omitempty"`
	FailureReason    *string             `db:"failure_reason" json:"failure_reason,omitempty"`
}

type InitiatePaymentRequest struct {
	BookingID uuid.UUID     `json:"booking_id" binding:"required"`
	Amount    float64       `json:"amount" binding:"required,gt=0"`
	Method    PaymentMethod `json:"method" binding:"required,oneof=GATEWAY CASH"`
	Timing    PaymentTiming `json:"timing" binding:"required,oneof=ADVANCE POST_SERVICE"`
}
