// Package feed renders the fleet snapshot as a GTFS-Realtime
// VehiclePositions feed.
package feed

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"transit-tracker/internal/fleet"
)

const gtfsRealtimeVersion = "2.0"

// VehiclePositions builds a FULL_DATASET feed with one entity per vehicle.
// Speeds are converted from km/h to m/s as GTFS-RT requires.
func VehiclePositions(states []fleet.VehicleState, now time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(states)),
	}
	for _, s := range states {
		vp := &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(s.VehicleID),
				Label: proto.String(s.VehicleID),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(s.Position.Lat)),
				Longitude: proto.Float32(float32(s.Position.Lng)),
				Speed:     proto.Float32(float32(s.SpeedKmh / 3.6)),
			},
			Timestamp: proto.Uint64(uint64(s.ObservedAt.Unix())),
		}
		if s.Assigned() {
			vp.Trip = &gtfs.TripDescriptor{RouteId: proto.String(s.RouteID)}
		}
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id:      proto.String(s.VehicleID),
			Vehicle: vp,
		})
	}
	return msg
}

// Marshal encodes a feed as protobuf, or as JSON when asJSON is set.
func Marshal(msg *gtfs.FeedMessage, asJSON bool) ([]byte, string, error) {
	if asJSON {
		b, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
		if err != nil {
			return nil, "", fmt.Errorf("encode feed json: %w", err)
		}
		return b, "application/json", nil
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, "", fmt.Errorf("encode feed: %w", err)
	}
	return b, "application/x-protobuf", nil
}
