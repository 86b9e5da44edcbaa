package notification

// CollectNotifications exposes row collection to the external tests.
func CollectNotifications(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}, skip func(id int64, err error)) ([]*Notification, error) {
	return collectNotifications(rows, skip)
}
