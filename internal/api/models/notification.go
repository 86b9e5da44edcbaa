package models

// Schedule is the tagged schedule of a notification.
// Once uses Date; Weekly uses Days (0 = Sunday) and Time ("HH:MM").
type Schedule struct {
	Type string     `json:"type"`
	Date *Timestamp `json:"date,omitempty"`
	Days []int      `json:"days,omitempty"`
	Time string     `json:"time,omitempty"`
}

// Notification is a stored train status notification.
type Notification struct {
	ID        int64     `json:"id"`
	Train     string    `json:"train"`
	Schedule  Schedule  `json:"schedule"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// NotificationCreateRequest is the request body for creating a notification.
type NotificationCreateRequest struct {
	Train    string   `json:"train"`
	Schedule Schedule `json:"schedule"`
}

// NotificationList is the list of a chat's notifications.
type NotificationList struct {
	Items []Notification `json:"items"`
}
