package model

// JamHistoryPayload is the task payload that records an ended jam in the
// history of each of its performers.
type JamHistoryPayload struct {
	JamID        int64   `json:"jamId"`
	PerformerIDs []int64 `json:"performerIds"`
}
