package model

import "time"

// DocumentSnapshot is an immutable, timestamped capture of the source
// document's text, linked to the work item it was analyzed against. Stores may
// retain history, but only the most recently stored snapshot per item is
// canonical; planning always compares against the latest.
type DocumentSnapshot struct {
	ItemID       int64     `json:"item_id"`
	Hash         string    `json:"hash"`
	Content      string    `json:"content"`
	DocumentPath string    `json:"document_path"`
	CapturedAt   time.Time `json:"captured_at"`
}
