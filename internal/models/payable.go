package models

import (
	"time"

	"github.com/google/uuid"
)

// PayableKind is the closed set of object kinds money can be attached to.
// It replaces the open polymorphic (content-type, object-id) reference of the
// stored data: the kind string is what lands in the object_type column.
type PayableKind string

const (
	KindOrder        PayableKind = "order"
	KindPackage      PayableKind = "package"
	KindShipment     PayableKind = "shipment"
	KindCourierOrder PayableKind = "courier_order"
	KindTicket       PayableKind = "ticket"
)

func (k PayableKind) Valid() bool {
	switch k {
	case KindOrder, KindPackage, KindShipment, KindCourierOrder, KindTicket:
		return true
	}
	return false
}

// PayableRef identifies a payable/trackable object without importing its table.
// Identifier is the denormalized human readable code kept on ledger entries,
// it survives deletion of the referenced object.
type PayableRef struct {
	Kind       PayableKind
	ObjectID   uuid.UUID
	Identifier string
}

func (r PayableRef) IsZero() bool {
	return r.Kind == "" && r.ObjectID == uuid.Nil
}

// Payable is the minimal projection of an Order/Package/Shipment/CourierOrder/Ticket
// row that the status engine and discount engine operate on. The full objects
// live in external tables; only the lifecycle columns are mirrored here.
type Payable struct {
	ID              uuid.UUID
	Kind            PayableKind
	Identifier      string
	UserID          uuid.UUID
	Status          string
	StatusUpdatedAt time.Time
	Extra           map[string]any
}

func (p *Payable) Ref() PayableRef {
	return PayableRef{Kind: p.Kind, ObjectID: p.ID, Identifier: p.Identifier}
}
