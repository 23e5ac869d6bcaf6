// Package feed exports the live fleet as a GTFS-Realtime VehiclePositions
// feed.
package feed

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"fleet-tracking-system/models"
)

const gtfsRealtimeVersion = "2.0"

// Build returns a full-dataset feed message with one entity per vehicle.
func Build(vehicles []models.Vehicle, now time.Time) *gtfs.FeedMessage {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(vehicles)),
	}
	for _, v := range vehicles {
		vp := &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{
				Id:           proto.String(v.ID),
				Label:        proto.String(v.Registration),
				LicensePlate: proto.String(v.Registration),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(v.Latitude)),
				Longitude: proto.Float32(float32(v.Longitude)),
			},
		}
		if v.RouteID != "" {
			vp.Trip = &gtfs.TripDescriptor{RouteId: proto.String(v.RouteID)}
		}
		if !v.LastUpdate.IsZero() {
			vp.Timestamp = proto.Uint64(uint64(v.LastUpdate.Unix()))
		}
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id:      proto.String(v.ID),
			Vehicle: vp,
		})
	}
	return msg
}

func Marshal(vehicles []models.Vehicle, now time.Time) ([]byte, error) {
	return proto.Marshal(Build(vehicles, now))
}

// MarshalJSON renders the feed with protojson for debugging.
func MarshalJSON(vehicles []models.Vehicle, now time.Time) ([]byte, error) {
	return protojson.MarshalOptions{Multiline: true}.Marshal(Build(vehicles, now))
}

// Decode reads vehicle positions back out of a feed. Entities without a
// vehicle id or position are skipped. Status is not carried by the feed.
func Decode(data []byte) ([]models.Vehicle, error) {
	var msg gtfs.FeedMessage
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode gtfs-rt: %w", err)
	}
	vehicles := make([]models.Vehicle, 0, len(msg.Entity))
	for _, ent := range msg.Entity {
		if ent == nil || ent.Vehicle == nil {
			continue
		}
		vp := ent.Vehicle
		if vp.Vehicle == nil || vp.Position == nil || vp.Vehicle.GetId() == "" {
			continue
		}
		v := models.Vehicle{
			ID:           vp.Vehicle.GetId(),
			Registration: vp.Vehicle.GetLabel(),
			RouteID:      vp.GetTrip().GetRouteId(),
			Latitude:     float64(vp.Position.GetLatitude()),
			Longitude:    float64(vp.Position.GetLongitude()),
		}
		if ts := vp.GetTimestamp(); ts > 0 {
			v.LastUpdate = time.Unix(int64(ts), 0)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}
