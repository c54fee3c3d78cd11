package audit

import "time"

// TimelineFilters menampung filter dasar untuk audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow mewakili satu baris audit timeline.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	ActorID  string         `json:"actor_id"`
	TenantID string         `json:"tenant_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
