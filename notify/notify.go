// Package notify defines the out-of-band delivery boundary for custodian key
// shards. Actual email/SMS transport is an external collaborator; the core
// only requires that every shard is confirmed delivered before the ceremony
// response is released.
package notify

import (
	"context"

	"trueballot/log"
	"trueballot/models"
)

// ShardDeliverer hands one key shard to one custodian out of band. A
// delivery error for any custodian aborts the whole ceremony rather than
// proceeding with partial distribution.
type ShardDeliverer interface {
	DeliverShard(ctx context.Context, custodian models.Custodian, shard models.KeyShard) error
}

// LogDeliverer is the default stand-in deliverer. It logs the delivery
// event with the shard fingerprint only; the payload never reaches the log
// stream.
type LogDeliverer struct{}

func NewLogDeliverer() *LogDeliverer {
	return &LogDeliverer{}
}

func (d *LogDeliverer) DeliverShard(_ context.Context, custodian models.Custodian, shard models.KeyShard) error {
	log.Infow("key shard handed to custodian",
		"custodian", custodian.Name,
		"label", shard.Label,
		"fingerprint", shard.Fingerprint,
	)
	return nil
}
