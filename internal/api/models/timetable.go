package models

// Station is a railway station.
type Station struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode,omitempty"`
}

// StationList is a list of stations.
type StationList struct {
	Items []Station `json:"items"`
}

// Timing is the scheduled and estimated timing at one station.
type Timing struct {
	Kind            string     `json:"kind"`
	Start           *Timestamp `json:"start,omitempty"`
	Arrive          *Timestamp `json:"arrive,omitempty"`
	EstimatedStart  *Timestamp `json:"estimatedStart,omitempty"`
	EstimatedArrive *Timestamp `json:"estimatedArrive,omitempty"`
	Track           string     `json:"track,omitempty"`
}

// ScheduledTrain is a train in a station timetable.
type ScheduledTrain struct {
	Timing
	Code         string  `json:"code"`
	StartStation Station `json:"startStation"`
	EndStation   Station `json:"endStation"`
	CurrentDelay int     `json:"currentDelay"`
	VehicleID    string  `json:"vehicleId,omitempty"`
}

// TimetableWindow is the timetable of a station for a time window.
type TimetableWindow struct {
	Station Station          `json:"station"`
	From    Timestamp        `json:"from"`
	To      Timestamp        `json:"to"`
	Items   []ScheduledTrain `json:"items"`
}

// TrainStop is one stop of a train's run.
type TrainStop struct {
	Timing
	Station Station `json:"station"`
}

// TrainStops is the stop list of a train.
type TrainStops struct {
	VehicleID string      `json:"vehicleId"`
	Items     []TrainStop `json:"items"`
}

// RealtimeTrain is a running train on the live map.
type RealtimeTrain struct {
	Code     string `json:"code"`
	Operator string `json:"operator"`
	Delay    int    `json:"delay"`
	Position Point  `json:"position"`
	Relation string `json:"relation"`
	ElviraID string `json:"elviraId,omitempty"`
}

// NearbyTrain is a running train with its distance from the query point.
type NearbyTrain struct {
	RealtimeTrain
	DistanceKm float64 `json:"distanceKm"`
}

// RealtimeTrainList is a list of running trains.
type RealtimeTrainList struct {
	Items     []RealtimeTrain `json:"items"`
	FetchedAt *Timestamp      `json:"fetchedAt,omitempty"`
}

// NearbyTrainList is a list of running trains near a point.
type NearbyTrainList struct {
	Items []NearbyTrain `json:"items"`
}
