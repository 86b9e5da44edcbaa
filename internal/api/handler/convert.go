package handler

import (
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/realtime"
)

func toStation(s mav.Station) models.Station {
	return models.Station{Code: s.Code, Name: s.Name, CountryCode: s.CountryCode}
}

func toTiming(t mav.Timing) models.Timing {
	return models.Timing{
		Kind:            t.Kind.String(),
		Start:           models.NewTimestamp(t.Start),
		Arrive:          models.NewTimestamp(t.Arrive),
		EstimatedStart:  models.NewTimestamp(t.EstimatedStart),
		EstimatedArrive: models.NewTimestamp(t.EstimatedArrive),
		Track:           t.Track,
	}
}

func toScheduledTrains(trains []mav.Train) []models.ScheduledTrain {
	out := make([]models.ScheduledTrain, 0, len(trains))
	for _, t := range trains {
		out = append(out, models.ScheduledTrain{
			Timing:       toTiming(t.Timing),
			Code:         t.Code,
			StartStation: toStation(t.StartStation),
			EndStation:   toStation(t.EndStation),
			CurrentDelay: t.CurrentDelay,
			VehicleID:    t.VehicleID,
		})
	}
	return out
}

func toTrainStops(stops []mav.TrainStop) []models.TrainStop {
	out := make([]models.TrainStop, 0, len(stops))
	for _, s := range stops {
		out = append(out, models.TrainStop{Timing: toTiming(s.Timing), Station: toStation(s.Station)})
	}
	return out
}

func toRealtimeTrain(t mav.RealtimeTrain) models.RealtimeTrain {
	return models.RealtimeTrain{
		Code:     t.Code,
		Operator: string(t.Operator),
		Delay:    t.Delay,
		Position: models.Point{Lat: t.Coordinates.Lat, Lon: t.Coordinates.Lon},
		Relation: t.Relation,
		ElviraID: t.ElviraID,
	}
}

func toNearbyTrains(trains []realtime.NearbyTrain) []models.NearbyTrain {
	out := make([]models.NearbyTrain, 0, len(trains))
	for _, t := range trains {
		out = append(out, models.NearbyTrain{RealtimeTrain: toRealtimeTrain(t.RealtimeTrain), DistanceKm: t.DistanceKm})
	}
	return out
}
