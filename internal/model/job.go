package model

import "time"

// ItemStatus represents the lifecycle state of a pending work item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"   // accepted upstream, no job number yet
	ItemStatusMatched   ItemStatus = "matched"   // job number assigned by reconciliation
	ItemStatusWeighing  ItemStatus = "weighing"  // weight fill in progress
	ItemStatusWeighed   ItemStatus = "weighed"   // all known weights applied
	ItemStatusSubmitted ItemStatus = "submitted" // sent for delivery voucher
	ItemStatusFailed    ItemStatus = "failed"
)

// Material is the declared metal category of a job.
type Material string

const (
	MaterialGold     Material = "Gold"
	MaterialSilver   Material = "Silver"
	MaterialPlatinum Material = "Platinum"
	MaterialUnknown  Material = "Unknown"
)

// KnownMaterials returns the material categories the portal renders.
func KnownMaterials() []Material {
	return []Material{MaterialGold, MaterialSilver, MaterialPlatinum}
}

// PendingItem is one line of declared work awaiting (or holding) a remote
// job number. Rows are created when a request is accepted upstream; this
// engine only ever sets JobNo and Status, it never deletes them.
type PendingItem struct {
	ID             int64      `json:"id"`
	RequestNo      string     `json:"request_no"`
	ItemCategory   string     `json:"item_category"`
	Pieces         int        `json:"pieces"`
	DeclaredPurity string     `json:"declared_purity"`
	DeclaredWeight float64    `json:"declared_weight"`
	JobNo          string     `json:"job_no,omitempty"` // empty until matched
	FirmID         string     `json:"firm_id"`
	Status         ItemStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Matched reports whether the item already carries a job number.
func (p PendingItem) Matched() bool {
	return p.JobNo != "" && p.JobNo != "0"
}

// RemoteJobRecord is one completed job as scraped from the portal list.
// Ephemeral: it lives for the duration of a scan pass and is never persisted.
type RemoteJobRecord struct {
	JobNo            string   `json:"job_no"`
	RequestNo        string   `json:"request_no"`
	ItemCategoryText string   `json:"item_category_text"`
	Material         Material `json:"material"`
	PortalStatus     string   `json:"portal_status,omitempty"`
}

// Tag is one individually numbered unit within a job. Weight and HUID stay
// empty until the convergence loop captures them from the portal.
type Tag struct {
	JobNo        string  `json:"job_no"`
	TagNo        string  `json:"tag_no"`
	SerialNo     int     `json:"serial_no"`
	ItemCategory string  `json:"item_category"`
	Purity       string  `json:"purity"`
	Weight       float64 `json:"weight,omitempty"`
	HUIDCode     string  `json:"huid_code,omitempty"`
}

// WeightEntry is a cached (weight, HUID) pair for one tag, loaded once per
// batch run from the store. Zero and negative weights are never cached.
type WeightEntry struct {
	Weight float64 `json:"weight"`
	HUID   string  `json:"huid,omitempty"`
}
