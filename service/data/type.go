package data

import (
	"context"

	"github.com/JSNN15/PPE-Detection-System/model"
)

// IService is the durable audit log: append-only CSV records, one file per
// day per record kind. It satisfies the dispatcher's Sink contract.
type IService interface {
	Name() string
	Deliver(ctx context.Context, event model.DispatchEvent) error
	Close() error

	NewDetectionRecords(event model.DispatchEvent) error
	NewAlertRecord(event model.DispatchEvent) error
}
