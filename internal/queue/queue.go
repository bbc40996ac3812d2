package queue

// DispatchJob is the payload carried on the dispatch queue. Delivery is
// at-least-once; the dispatcher's lease makes duplicate triggers harmless.
type DispatchJob struct {
	BroadcastID int `json:"broadcast_id"`
}

// DispatchQueue is the background task runner the admin API hands
// broadcast runs to.
type DispatchQueue interface {
	PublishDispatch(broadcastID int) error
}
